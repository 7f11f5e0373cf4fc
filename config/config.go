package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/johnwmail/vpaste/internal/slug"
	"github.com/johnwmail/vpaste/models"
)

// Supported store backends
const (
	StoreRedis    = "redis"
	StoreMemory   = "memory"
	StoreBolt     = "bolt"
	StoreMongoDB  = "mongodb"
	StoreDynamoDB = "dynamodb"
)

// Config holds all configuration for the vpaste service
type Config struct {
	Port    int    `json:"port"`
	BaseURL string `json:"base_url"`

	StoreType       string `json:"store_type"`
	KeyPrefix       string `json:"key_prefix"`
	RedisURL        string `json:"redis_url"`
	BoltPath        string `json:"bolt_path"`
	MongoURI        string `json:"mongo_uri"`
	MongoDatabase   string `json:"mongo_database"`
	MongoCollection string `json:"mongo_collection"`
	DynamoTable     string `json:"dynamo_table"`
	DynamoRegion    string `json:"dynamo_region"`

	IDLength   int    `json:"id_length"`
	IDAlphabet string `json:"id_alphabet"`

	// TCPPort enables netcat-style ingestion when non-zero. Pastes created
	// over TCP get TCPTTLSeconds and TCPMaxViews; zero means unlimited.
	TCPPort        int           `json:"tcp_port"`
	TCPMaxBytes    int64         `json:"tcp_max_bytes"`
	TCPReadTimeout time.Duration `json:"tcp_read_timeout"`
	TCPTTLSeconds  int64         `json:"tcp_ttl_seconds"`
	TCPMaxViews    int64         `json:"tcp_max_views"`

	JanitorInterval time.Duration `json:"janitor_interval"`
	StoreTimeout    time.Duration `json:"store_timeout"`

	// TestMode enables the X-Test-Now-Ms clock override. Never on by default.
	TestMode bool `json:"test_mode"`

	LogLevel       string `json:"log_level"`
	LogFormat      string `json:"log_format"`
	MetricsEnabled bool   `json:"metrics_enabled"`

	Version    string `json:"version"`
	BuildTime  string `json:"build_time"`
	CommitHash string `json:"commit_hash"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Port:            8080,
		BaseURL:         "",
		StoreType:       StoreRedis,
		KeyPrefix:       "paste:",
		RedisURL:        "redis://localhost:6379/0",
		BoltPath:        "./data/vpaste.db",
		MongoURI:        "mongodb://localhost:27017",
		MongoDatabase:   "vpaste",
		MongoCollection: "pastes",
		DynamoTable:     "vpaste-pastes",
		IDLength:        slug.DefaultLength,
		IDAlphabet:      slug.DefaultSymbols,
		TCPMaxBytes:     1 << 20,
		TCPReadTimeout:  5 * time.Second,
		JanitorInterval: time.Minute,
		StoreTimeout:    5 * time.Second,
		LogLevel:        "info",
		LogFormat:       "text",
		MetricsEnabled:  true,
	}
}

// Load parses CLI flags from args, then applies VPASTE_* environment
// overrides and validates the result.
func Load(args []string) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("vpaste", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Port to listen on")
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Public base URL used in paste links (default: derived from the request)")
	fs.StringVar(&cfg.StoreType, "store", cfg.StoreType, "Store backend: redis, memory, bolt, mongodb or dynamodb")
	fs.StringVar(&cfg.KeyPrefix, "key-prefix", cfg.KeyPrefix, "Prefix for paste keys in the store")
	fs.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis connection URL")
	fs.StringVar(&cfg.BoltPath, "bolt-path", cfg.BoltPath, "bbolt database file")
	fs.StringVar(&cfg.MongoURI, "mongo-uri", cfg.MongoURI, "MongoDB connection URI")
	fs.StringVar(&cfg.MongoDatabase, "mongo-db", cfg.MongoDatabase, "MongoDB database")
	fs.StringVar(&cfg.MongoCollection, "mongo-collection", cfg.MongoCollection, "MongoDB collection")
	fs.StringVar(&cfg.DynamoTable, "dynamo-table", cfg.DynamoTable, "DynamoDB table")
	fs.StringVar(&cfg.DynamoRegion, "dynamo-region", cfg.DynamoRegion, "DynamoDB region (default from AWS config)")
	fs.IntVar(&cfg.IDLength, "id-length", cfg.IDLength, "Length of generated paste ids")
	fs.StringVar(&cfg.IDAlphabet, "id-alphabet", cfg.IDAlphabet, "Symbols used for paste ids")
	fs.IntVar(&cfg.TCPPort, "tcp-port", cfg.TCPPort, "Port for netcat-style paste ingestion (0 disables)")
	fs.Int64Var(&cfg.TCPMaxBytes, "tcp-max-bytes", cfg.TCPMaxBytes, "Largest paste accepted over TCP")
	fs.DurationVar(&cfg.TCPReadTimeout, "tcp-read-timeout", cfg.TCPReadTimeout, "How long a TCP client may take to send its paste")
	fs.Int64Var(&cfg.TCPTTLSeconds, "tcp-ttl", cfg.TCPTTLSeconds, "TTL in seconds for TCP pastes (0 means none)")
	fs.Int64Var(&cfg.TCPMaxViews, "tcp-max-views", cfg.TCPMaxViews, "View limit for TCP pastes (0 means unlimited)")
	fs.DurationVar(&cfg.JanitorInterval, "janitor-interval", cfg.JanitorInterval, "Sweep interval for stores without native expiry")
	fs.DurationVar(&cfg.StoreTimeout, "store-timeout", cfg.StoreTimeout, "Per-request store timeout")
	fs.BoolVar(&cfg.TestMode, "test-mode", cfg.TestMode, "Honor the X-Test-Now-Ms header")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")
	fs.BoolVar(&cfg.MetricsEnabled, "metrics", cfg.MetricsEnabled, "Expose /metrics")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error

	setString := func(name string, dst *string) {
		if val := os.Getenv(name); val != "" {
			*dst = val
		}
	}
	setInt := func(name string, dst *int) {
		if val := os.Getenv(name); val != "" {
			n, err := strconv.Atoi(val)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	setInt64 := func(name string, dst *int64) {
		if val := os.Getenv(name); val != "" {
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	setBool := func(name string, dst *bool) {
		if val := os.Getenv(name); val != "" {
			b, err := strconv.ParseBool(val)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = b
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if val := os.Getenv(name); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = d
		}
	}

	setInt("VPASTE_PORT", &c.Port)
	setString("VPASTE_BASE_URL", &c.BaseURL)
	setString("VPASTE_STORE", &c.StoreType)
	setString("VPASTE_KEY_PREFIX", &c.KeyPrefix)
	setString("VPASTE_REDIS_URL", &c.RedisURL)
	setString("VPASTE_BOLT_PATH", &c.BoltPath)
	setString("VPASTE_MONGO_URI", &c.MongoURI)
	setString("VPASTE_MONGO_DB", &c.MongoDatabase)
	setString("VPASTE_MONGO_COLLECTION", &c.MongoCollection)
	setString("VPASTE_DYNAMO_TABLE", &c.DynamoTable)
	setString("VPASTE_DYNAMO_REGION", &c.DynamoRegion)
	setInt("VPASTE_ID_LENGTH", &c.IDLength)
	setString("VPASTE_ID_ALPHABET", &c.IDAlphabet)
	setInt("VPASTE_TCP_PORT", &c.TCPPort)
	setInt64("VPASTE_TCP_MAX_BYTES", &c.TCPMaxBytes)
	setDuration("VPASTE_TCP_READ_TIMEOUT", &c.TCPReadTimeout)
	setInt64("VPASTE_TCP_TTL", &c.TCPTTLSeconds)
	setInt64("VPASTE_TCP_MAX_VIEWS", &c.TCPMaxViews)
	setDuration("VPASTE_JANITOR_INTERVAL", &c.JanitorInterval)
	setDuration("VPASTE_STORE_TIMEOUT", &c.StoreTimeout)
	setBool("VPASTE_TEST_MODE", &c.TestMode)
	setString("VPASTE_LOG_LEVEL", &c.LogLevel)
	setString("VPASTE_LOG_FORMAT", &c.LogFormat)
	setBool("VPASTE_METRICS", &c.MetricsEnabled)

	return errors.Join(errs...)
}

// Validate checks the configuration once at boot
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", c.Port))
	}
	if c.BaseURL != "" {
		if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("base URL must be absolute, got %q", c.BaseURL))
		}
	}
	if _, err := slug.New(c.IDLength, c.IDAlphabet); err != nil {
		errs = append(errs, err)
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("store timeout must be positive"))
	}

	if c.TCPPort != 0 {
		if c.TCPPort < 1 || c.TCPPort > 65535 || c.TCPPort == c.Port {
			errs = append(errs, fmt.Errorf("tcp port must be between 1 and 65535 and differ from the HTTP port, got %d", c.TCPPort))
		}
		if c.TCPMaxBytes < 1 {
			errs = append(errs, errors.New("tcp max bytes must be positive"))
		}
		if c.TCPReadTimeout <= 0 {
			errs = append(errs, errors.New("tcp read timeout must be positive"))
		}
		if c.TCPTTLSeconds < 0 || c.TCPMaxViews < 0 {
			errs = append(errs, errors.New("tcp ttl and max views must not be negative"))
		}
		if c.TCPTTLSeconds > models.MaxTTLSeconds {
			errs = append(errs, fmt.Errorf("tcp ttl must be at most %d seconds", models.MaxTTLSeconds))
		}
	}

	switch c.StoreType {
	case StoreRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("redis URL is required for the redis store"))
		}
	case StoreMemory:
	case StoreBolt:
		if c.BoltPath == "" {
			errs = append(errs, errors.New("bolt path is required for the bolt store"))
		}
		if c.JanitorInterval <= 0 {
			errs = append(errs, errors.New("janitor interval must be positive for the bolt store"))
		}
	case StoreMongoDB:
		if c.MongoURI == "" || c.MongoDatabase == "" || c.MongoCollection == "" {
			errs = append(errs, errors.New("mongo URI, database and collection are required for the mongodb store"))
		}
	case StoreDynamoDB:
		if c.DynamoTable == "" {
			errs = append(errs, errors.New("dynamo table is required for the dynamodb store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported store type %q", c.StoreType))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unsupported log level %q", c.LogLevel))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unsupported log format %q", c.LogFormat))
	}

	return errors.Join(errs...)
}
