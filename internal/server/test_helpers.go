package server

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/johnwmail/vpaste/config"
	"github.com/johnwmail/vpaste/internal/services"
	"github.com/johnwmail/vpaste/internal/slug"
	"github.com/johnwmail/vpaste/storage"
)

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConfig() *config.Config {
	cfg := config.Default()
	cfg.StoreType = config.StoreMemory
	cfg.BaseURL = "https://paste.example.com/"
	cfg.TCPPort = 9999
	cfg.TCPReadTimeout = 200 * time.Millisecond
	return cfg
}

func newTestService(t *testing.T) *services.PasteService {
	t.Helper()
	ids, err := slug.New(slug.DefaultLength, "")
	if err != nil {
		t.Fatalf("slug.New: %v", err)
	}
	return services.NewPasteService(storage.NewMemoryStore(), ids, services.WithLogger(createTestLogger()))
}

// Helper functions for proper resource cleanup in tests

func closeConn(t *testing.T, conn net.Conn) {
	if err := conn.Close(); err != nil {
		t.Logf("Failed to close connection: %v", err)
	}
}

func closeTCPWrite(t *testing.T, conn *net.TCPConn) {
	if err := conn.CloseWrite(); err != nil {
		t.Logf("Failed to close TCP write: %v", err)
	}
}

func setReadDeadline(t *testing.T, conn net.Conn, deadline time.Time) {
	if err := conn.SetReadDeadline(deadline); err != nil {
		t.Logf("Failed to set read deadline: %v", err)
	}
}
