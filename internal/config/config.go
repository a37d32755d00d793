// Package config loads the gateway's YAML configuration file, applies
// environment overrides, and fills in defaults.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Logging       LoggingConfig       `yaml:"logging"`
	Loader        LoaderConfig        `yaml:"loader"`
	Janitor       JanitorConfig       `yaml:"janitor"`
	RPC           RPCConfig           `yaml:"rpc"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// DatabaseConfig configures the embedded sqlite store.
type DatabaseConfig struct {
	// Path is the sqlite database file. ":memory:" runs without persistence.
	Path string `yaml:"path"`
}

// LoggingConfig configures the process-wide slog handler.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// JSON selects the JSON handler over the text handler.
	JSON bool `yaml:"json"`
}

// LoaderConfig configures the 3-layer tool selection policy.
type LoaderConfig struct {
	// MaxLayer2 bounds how many Relevant tools a query can surface.
	MaxLayer2 int `yaml:"max_layer2"`
}

// JanitorConfig configures the background context-snapshot sweep.
type JanitorConfig struct {
	// Schedule is a standard five-field cron expression or a descriptor such
	// as "@hourly".
	Schedule string `yaml:"schedule"`
	// MaxAge is how long a snapshot survives before the janitor prunes it.
	MaxAge time.Duration `yaml:"max_age"`
}

// RPCConfig configures the gateway's JSON-RPC worker pool.
type RPCConfig struct {
	// MaxConcurrentCalls bounds how many call_tool requests run at once.
	MaxConcurrentCalls int `yaml:"max_concurrent_calls"`
	// CallTimeout bounds a single tool invocation.
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// ObservabilityConfig configures the gateway's metrics and tracing. The
// gateway has no network listener, so this only governs an outbound OTLP
// export of spans the process creates around its own dispatch path; it is
// never a source of inbound network behavior.
type ObservabilityConfig struct {
	// ServiceName labels every exported span and metric.
	ServiceName string `yaml:"service_name"`
	// TracingEndpoint is the OTLP/gRPC collector address. Empty disables
	// export: spans are still created, just never sent anywhere.
	TracingEndpoint string `yaml:"tracing_endpoint"`
	// TracingInsecure disables TLS on the OTLP connection.
	TracingInsecure bool `yaml:"tracing_insecure"`
}

// Load reads and parses the configuration file at path, applies environment
// overrides, fills in defaults, and validates the result. A missing file is
// not an error: Load falls back to an all-defaults Config so the gateway can
// run from environment variables alone.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		decoder := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(data))))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if err := decoder.Decode(&struct{}{}); err != io.EOF {
			return nil, fmt.Errorf("parse config %s: expected a single document", path)
		}
	case os.IsNotExist(err):
		// fall through with zero-value cfg; defaults below cover it
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("DB_PATH")); v != "" {
		cfg.Database.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Database.Path == "" {
		cfg.Database.Path = "gateway.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Loader.MaxLayer2 == 0 {
		cfg.Loader.MaxLayer2 = 15
	}
	if cfg.Janitor.Schedule == "" {
		cfg.Janitor.Schedule = "@hourly"
	}
	if cfg.Janitor.MaxAge == 0 {
		cfg.Janitor.MaxAge = 7 * 24 * time.Hour
	}
	if cfg.RPC.MaxConcurrentCalls == 0 {
		cfg.RPC.MaxConcurrentCalls = 8
	}
	if cfg.RPC.CallTimeout == 0 {
		cfg.RPC.CallTimeout = 30 * time.Second
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "forgemcp-gateway"
	}
}

func validate(cfg *Config) error {
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: logging.level %q is not one of debug/info/warn/error", cfg.Logging.Level)
	}
	if cfg.Loader.MaxLayer2 < 1 {
		return fmt.Errorf("config: loader.max_layer2 must be positive, got %d", cfg.Loader.MaxLayer2)
	}
	if cfg.RPC.MaxConcurrentCalls < 1 {
		return fmt.Errorf("config: rpc.max_concurrent_calls must be positive, got %d", cfg.RPC.MaxConcurrentCalls)
	}
	return nil
}
