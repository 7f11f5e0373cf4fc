package server

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/johnwmail/vpaste/config"
	"github.com/johnwmail/vpaste/internal/services"
)

// startTestServer serves on a random loopback port and returns its address
func startTestServer(t *testing.T, cfg *config.Config, svc *services.PasteService) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}
	server := NewTCPServer(cfg, svc, createTestLogger())
	server.Serve(listener)
	t.Cleanup(func() {
		if err := server.Stop(); err != nil {
			t.Logf("Failed to stop server: %v", err)
		}
	})
	return listener.Addr().String()
}

// send writes input, optionally half-closes, and returns the full response
func send(t *testing.T, addr, input string, halfClose bool) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer closeConn(t, conn)

	if _, err := conn.Write([]byte(input)); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if halfClose {
		closeTCPWrite(t, conn.(*net.TCPConn))
	}

	setReadDeadline(t, conn, time.Now().Add(5*time.Second))
	resp, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return string(resp)
}

func idFromURL(t *testing.T, resp string) string {
	t.Helper()
	const prefix = "https://paste.example.com/p/"
	if !strings.HasPrefix(resp, prefix) || !strings.HasSuffix(resp, "\n") {
		t.Fatalf("Expected paste URL, got %q", resp)
	}
	return strings.TrimSuffix(strings.TrimPrefix(resp, prefix), "\n")
}

func TestTCPServer_CreatesPaste(t *testing.T) {
	cfg := newTestConfig()
	svc := newTestService(t)
	addr := startTestServer(t, cfg, svc)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple text paste", "Hello, World!\nThis is a test paste.", "Hello, World!\nThis is a test paste."},
		{"trailing whitespace trimmed", "line one\nline two \t\r", "line one\nline two"},
		{"trailing nulls trimmed", "data\x00\x00", "data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := idFromURL(t, send(t, addr, tt.input, true))

			res, err := svc.ConsumeView(context.Background(), id, time.Now())
			if err != nil {
				t.Fatalf("ConsumeView: %v", err)
			}
			if !res.Live || res.Paste.Content != tt.want {
				t.Errorf("Expected live paste %q, got live=%v content=%q", tt.want, res.Live, res.Paste.Content)
			}
		})
	}
}

func TestTCPServer_AppliesLimits(t *testing.T) {
	cfg := newTestConfig()
	cfg.TCPMaxViews = 1
	cfg.TCPTTLSeconds = 60
	svc := newTestService(t)
	addr := startTestServer(t, cfg, svc)

	id := idFromURL(t, send(t, addr, "burn me", true))

	meta, err := svc.Get(context.Background(), id, time.Now())
	if err != nil || !meta.Live {
		t.Fatalf("Get: live=%v err=%v", meta.Live, err)
	}
	if meta.Paste.MaxViews != 1 || meta.Paste.TTLSeconds != 60 {
		t.Errorf("Expected max views 1 and ttl 60, got %d and %d", meta.Paste.MaxViews, meta.Paste.TTLSeconds)
	}

	if res, _ := svc.ConsumeView(context.Background(), id, time.Now()); !res.Live {
		t.Fatal("first view should be live")
	}
	if res, _ := svc.ConsumeView(context.Background(), id, time.Now()); res.Live {
		t.Fatal("second view should be dead")
	}
}

func TestTCPServer_Rejections(t *testing.T) {
	cfg := newTestConfig()
	cfg.TCPMaxBytes = 16
	addr := startTestServer(t, cfg, newTestService(t))

	if resp := send(t, addr, "", true); resp != "Error: Empty paste\n" {
		t.Errorf("empty paste: got %q", resp)
	}
	if resp := send(t, addr, "  \t\r", true); resp != "Error: Empty paste\n" {
		t.Errorf("whitespace paste: got %q", resp)
	}
	if resp := send(t, addr, strings.Repeat("x", 17), true); resp != "Error: Paste too large\n" {
		t.Errorf("oversized paste: got %q", resp)
	}
	if resp := send(t, addr, strings.Repeat("x", 16), true); !strings.HasPrefix(resp, "https://") {
		t.Errorf("paste at the limit should be accepted, got %q", resp)
	}
}

func TestTCPServer_ClientWithoutHalfClose(t *testing.T) {
	cfg := newTestConfig()
	svc := newTestService(t)
	addr := startTestServer(t, cfg, svc)

	// The read deadline ends the paste when the client keeps the socket open.
	id := idFromURL(t, send(t, addr, "still connected", false))
	res, err := svc.Get(context.Background(), id, time.Now())
	if err != nil || !res.Live || res.Paste.Content != "still connected" {
		t.Fatalf("unexpected paste: live=%v err=%v", res.Live, err)
	}
}

func TestTCPServer_DefaultBaseURL(t *testing.T) {
	cfg := newTestConfig()
	cfg.BaseURL = ""
	cfg.Port = 8081
	addr := startTestServer(t, cfg, newTestService(t))

	if resp := send(t, addr, "x", true); !strings.HasPrefix(resp, "http://localhost:8081/p/") {
		t.Errorf("Expected localhost URL, got %q", resp)
	}
}

func TestTrimNullBytes(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"abc", "abc"},
		{"abc\x00\x00", "abc"},
		{"abc \t\r", "abc"},
		{"abc\n", "abc\n"},
		{"\x00", ""},
	}
	for _, tt := range tests {
		if got := string(trimNullBytes([]byte(tt.in))); got != tt.want {
			t.Errorf("trimNullBytes(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
