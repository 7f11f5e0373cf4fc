package config

import (
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	for _, name := range []string{
		"VPASTE_PORT", "VPASTE_BASE_URL", "VPASTE_STORE", "VPASTE_KEY_PREFIX",
		"VPASTE_REDIS_URL", "VPASTE_BOLT_PATH", "VPASTE_MONGO_URI", "VPASTE_MONGO_DB",
		"VPASTE_MONGO_COLLECTION", "VPASTE_DYNAMO_TABLE", "VPASTE_DYNAMO_REGION",
		"VPASTE_ID_LENGTH", "VPASTE_ID_ALPHABET", "VPASTE_JANITOR_INTERVAL",
		"VPASTE_STORE_TIMEOUT", "VPASTE_TEST_MODE", "VPASTE_LOG_LEVEL",
		"VPASTE_LOG_FORMAT", "VPASTE_METRICS", "VPASTE_TCP_PORT", "VPASTE_TCP_MAX_BYTES",
		"VPASTE_TCP_READ_TIMEOUT", "VPASTE_TCP_TTL", "VPASTE_TCP_MAX_VIEWS",
	} {
		t.Setenv(name, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.StoreType != StoreRedis {
		t.Errorf("expected default store redis, got %s", cfg.StoreType)
	}
	if cfg.IDLength != 10 {
		t.Errorf("expected default id length 10, got %d", cfg.IDLength)
	}
	if cfg.KeyPrefix != "paste:" {
		t.Errorf("expected key prefix paste:, got %q", cfg.KeyPrefix)
	}
	if cfg.TestMode {
		t.Error("test mode must be off by default")
	}
	if cfg.BaseURL != "" {
		t.Errorf("expected empty base URL, got %q", cfg.BaseURL)
	}
}

func TestLoad_Flags(t *testing.T) {
	clearEnv(t)
	cfg, err := Load([]string{"-port", "9090", "-store", "memory", "-id-length", "12", "-test-mode"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 9090 || cfg.StoreType != StoreMemory || cfg.IDLength != 12 || !cfg.TestMode {
		t.Errorf("flags not applied: %+v", cfg)
	}
}

func TestLoad_EnvOverridesFlags(t *testing.T) {
	clearEnv(t)
	t.Setenv("VPASTE_PORT", "3000")
	t.Setenv("VPASTE_STORE", "bolt")
	t.Setenv("VPASTE_JANITOR_INTERVAL", "30s")
	t.Setenv("VPASTE_TEST_MODE", "true")
	t.Setenv("VPASTE_TCP_PORT", "9999")
	t.Setenv("VPASTE_TCP_MAX_VIEWS", "1")

	cfg, err := Load([]string{"-port", "9090", "-store", "memory"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 3000 {
		t.Errorf("expected env port 3000, got %d", cfg.Port)
	}
	if cfg.StoreType != StoreBolt {
		t.Errorf("expected env store bolt, got %s", cfg.StoreType)
	}
	if cfg.JanitorInterval != 30*time.Second {
		t.Errorf("expected janitor interval 30s, got %v", cfg.JanitorInterval)
	}
	if !cfg.TestMode {
		t.Error("expected test mode from env")
	}
	if cfg.TCPPort != 9999 || cfg.TCPMaxViews != 1 {
		t.Errorf("expected tcp settings from env, got port %d max views %d", cfg.TCPPort, cfg.TCPMaxViews)
	}
}

func TestLoad_BadEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("VPASTE_PORT", "not-a-number")
	if _, err := Load(nil); err == nil {
		t.Fatal("expected error for malformed VPASTE_PORT")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Port = 0 }, "port"},
		{"relative base url", func(c *Config) { c.BaseURL = "/p" }, "base URL"},
		{"unknown store", func(c *Config) { c.StoreType = "s3" }, "unsupported store type"},
		{"zero id length", func(c *Config) { c.IDLength = 0 }, "length"},
		{"duplicate alphabet", func(c *Config) { c.IDAlphabet = "aab" }, "duplicate"},
		{"bolt without janitor", func(c *Config) { c.StoreType = StoreBolt; c.JanitorInterval = 0 }, "janitor"},
		{"dynamo without table", func(c *Config) { c.StoreType = StoreDynamoDB; c.DynamoTable = "" }, "dynamo table"},
		{"tcp port equals http port", func(c *Config) { c.TCPPort = c.Port }, "tcp port"},
		{"tcp negative views", func(c *Config) { c.TCPPort = 9999; c.TCPMaxViews = -1 }, "must not be negative"},
		{"tcp ttl beyond ceiling", func(c *Config) { c.TCPPort = 9999; c.TCPTTLSeconds = 10_000_000_000 }, "tcp ttl must be at most"},
		{"tcp zero max bytes", func(c *Config) { c.TCPPort = 9999; c.TCPMaxBytes = 0 }, "tcp max bytes"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "log level"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
