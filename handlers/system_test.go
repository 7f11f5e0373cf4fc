package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/johnwmail/vpaste/internal/services"
	"github.com/johnwmail/vpaste/internal/slug"
	"github.com/johnwmail/vpaste/storage"
)

func newTestSystemHandler(t *testing.T, store storage.HashStore) *SystemHandler {
	t.Helper()
	ids, err := slug.New(slug.DefaultLength, "")
	if err != nil {
		t.Fatalf("slug.New: %v", err)
	}
	return NewSystemHandler(services.NewPasteService(store, ids), newTestConfig())
}

func TestSystemHandler_Health(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := newTestSystemHandler(t, storage.NewMemoryStore())
	started := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	handler.started = started
	handler.now = func() time.Time { return started.Add(26*time.Hour + 3*time.Minute + 4*time.Second + 500*time.Millisecond) }

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/healthz", nil)

	handler.Health(c)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	expected := map[string]interface{}{
		"ok":             true,
		"api_version":    "1.0",
		"store":          "ok",
		"store_type":     "memory",
		"datetime":       "2024-01-02T02:03:04.500Z",
		"uptime_seconds": float64(93784),
		"uptime_ms":      float64(93784500),
		"uptime_human":   "1d 2h 3m 4s",
	}
	for key, want := range expected {
		if got, ok := response[key]; !ok {
			t.Errorf("Expected %q field in response", key)
		} else if got != want {
			t.Errorf("Expected %s %v, got %v", key, want, got)
		}
	}
}

func TestSystemHandler_HealthStoreDown(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := storage.NewMemoryStore()
	handler := newTestSystemHandler(t, store)
	_ = store.Close()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/healthz", nil)

	handler.Health(c)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if response["ok"] != false || response["store"] != "error" {
		t.Errorf("unexpected health body %v", response)
	}
}
