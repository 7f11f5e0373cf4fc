package validation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/johnwmail/vpaste/models"
)

func int64p(v int64) *int64 { return &v }

func TestCreatePasteRequest_Valid(t *testing.T) {
	v := New()

	for _, req := range []CreatePasteRequest{
		{Content: "x"},
		{Content: "x", TTLSeconds: int64p(1)},
		{Content: "x", MaxViews: int64p(1), TTLSeconds: int64p(3600)},
		{Content: "x", TTLSeconds: int64p(models.MaxTTLSeconds)},
	} {
		if err := v.Struct(req); err != nil {
			t.Errorf("expected %+v to be valid, got %v", req, err)
		}
	}
}

func TestCreatePasteRequest_Invalid(t *testing.T) {
	v := New()

	tests := []struct {
		name  string
		req   CreatePasteRequest
		field string
	}{
		{"missing content", CreatePasteRequest{}, "content"},
		{"zero ttl", CreatePasteRequest{Content: "x", TTLSeconds: int64p(0)}, "ttl_seconds"},
		{"negative max views", CreatePasteRequest{Content: "x", MaxViews: int64p(-1)}, "max_views"},
		{"ttl above ceiling", CreatePasteRequest{Content: "x", TTLSeconds: int64p(models.MaxTTLSeconds + 1)}, "ttl_seconds"},
		{"ttl that overflows a duration", CreatePasteRequest{Content: "x", TTLSeconds: int64p(10_000_000_000)}, "ttl_seconds"},
		{"ttl that overflows milliseconds", CreatePasteRequest{Content: "x", TTLSeconds: int64p(9_300_000_000_000_000)}, "ttl_seconds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.req)
			if err == nil {
				t.Fatal("expected validation error")
			}
			fields := validationErrorsToMap(err)
			if _, ok := fields[tt.field]; !ok {
				t.Errorf("expected error for %s, got %v", tt.field, fields)
			}
		})
	}
}

func TestBindAndValidate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := New()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{"valid", `{"content":"hi","max_views":2}`, http.StatusOK, ""},
		{"null limits", `{"content":"hi","ttl_seconds":null,"max_views":null}`, http.StatusOK, ""},
		{"empty content", `{"content":""}`, http.StatusBadRequest, "validation_failed"},
		{"fractional ttl", `{"content":"hi","ttl_seconds":1.5}`, http.StatusBadRequest, "invalid_request_body"},
		{"ttl beyond 100 years", `{"content":"hi","ttl_seconds":10000000000}`, http.StatusBadRequest, "validation_failed"},
		{"not json", `content=hi`, http.StatusBadRequest, "invalid_request_body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/api/pastes", strings.NewReader(tt.body))
			c.Request.Header.Set("Content-Type", "application/json")

			var req CreatePasteRequest
			err := BindAndValidate(c, &req, v)
			if tt.wantStatus == http.StatusOK {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			var resp map[string]interface{}
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if resp["error"] != tt.wantError {
				t.Errorf("expected error %q, got %v", tt.wantError, resp["error"])
			}
		})
	}
}

func TestTTLCeilingMessage(t *testing.T) {
	err := New().Struct(CreatePasteRequest{Content: "x", TTLSeconds: int64p(models.MaxTTLSeconds + 1)})
	fields := validationErrorsToMap(err)
	if got := fields["ttl_seconds"]; got != "ttl_seconds must be an integer <= 3153600000" {
		t.Errorf("unexpected message %q", got)
	}
}
