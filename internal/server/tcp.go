package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/johnwmail/vpaste/config"
	"github.com/johnwmail/vpaste/internal/services"
	"github.com/johnwmail/vpaste/utils"
)

// TCPServer accepts pastes from netcat-style clients: everything sent before
// the client half-closes (or the read timeout fires) becomes one paste, and
// the paste URL is written back.
type TCPServer struct {
	config   *config.Config
	service  *services.PasteService
	listener net.Listener
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	conns    sync.WaitGroup
}

// NewTCPServer creates a new TCP server
func NewTCPServer(cfg *config.Config, service *services.PasteService, logger *slog.Logger) *TCPServer {
	ctx, cancel := context.WithCancel(context.Background())

	return &TCPServer{
		config:  cfg,
		service: service,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start listens on the configured TCP port
func (s *TCPServer) Start() error {
	addr := fmt.Sprintf(":%d", s.config.TCPPort)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.Serve(listener)
	return nil
}

// Serve accepts connections from listener in the background
func (s *TCPServer) Serve(listener net.Listener) {
	s.listener = listener
	s.logger.Info("TCP server started", "address", listener.Addr().String())

	go s.acceptConnections()
}

// Stop closes the listener and waits for in-flight connections
func (s *TCPServer) Stop() error {
	s.cancel()

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.conns.Wait()
	return err
}

func (s *TCPServer) acceptConnections() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("Failed to accept connection", "error", err)
			continue
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *TCPServer) handleConnection(conn net.Conn) {
	defer func() {
		if err := conn.Close(); err != nil {
			s.logger.Debug("Failed to close connection", "error", err)
		}
	}()

	clientAddr := conn.RemoteAddr().String()
	s.logger.Debug("New TCP connection", "client", clientAddr)

	writeResponse := func(message string) {
		if _, err := conn.Write([]byte(message)); err != nil {
			s.logger.Debug("Failed to write response to client", "client", clientAddr, "error", err)
		}
	}

	if err := conn.SetReadDeadline(time.Now().Add(s.config.TCPReadTimeout)); err != nil {
		s.logger.Error("Failed to set read deadline", "error", err)
		return
	}

	limit := s.config.TCPMaxBytes
	content, err := io.ReadAll(io.LimitReader(conn, limit+1))
	if err != nil && !isTimeout(err) {
		s.logger.Error("Failed to read from connection", "client", clientAddr, "error", err)
		return
	}
	// A timeout is normal for clients that never half-close; whatever
	// arrived before the deadline is the paste.
	if int64(len(content)) > limit {
		s.logger.Warn("TCP paste too large", "client", clientAddr, "limit", limit)
		writeResponse("Error: Paste too large\n")
		return
	}

	content = trimNullBytes(content)
	if len(content) == 0 {
		s.logger.Warn("Empty paste received", "client", clientAddr)
		writeResponse("Error: Empty paste\n")
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.config.StoreTimeout)
	defer cancel()

	resp, err := s.service.Create(ctx, services.CreatePasteRequest{
		Content:    string(content),
		TTLSeconds: positive(s.config.TCPTTLSeconds),
		MaxViews:   positive(s.config.TCPMaxViews),
	}, time.Now())
	if err != nil {
		s.logger.Error("Failed to store TCP paste", "client", clientAddr, "error", err)
		writeResponse("Error: Could not save paste\n")
		return
	}

	writeResponse(s.baseURL() + "/p/" + resp.ID + "\n")

	s.logger.Info("Paste created via TCP",
		"id", resp.ID,
		"client", clientAddr,
		"size", len(content),
		"created_at", utils.FormatISO(resp.CreatedAt))
}

// baseURL is the configured public URL, or localhost on the HTTP port since
// there is no request to derive one from.
func (s *TCPServer) baseURL() string {
	if s.config.BaseURL != "" {
		return strings.TrimRight(s.config.BaseURL, "/")
	}
	return fmt.Sprintf("http://localhost:%d", s.config.Port)
}

func positive(v int64) *int64 {
	if v <= 0 {
		return nil
	}
	return &v
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// trimNullBytes removes trailing null bytes and horizontal whitespace but
// keeps newlines.
func trimNullBytes(data []byte) []byte {
	end := len(data)
	for end > 0 && data[end-1] == 0 {
		end--
	}

	trimmed := strings.TrimRightFunc(string(data[:end]), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\r'
	})

	return []byte(trimmed)
}
