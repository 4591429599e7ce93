// Package config provides bridge configuration loaded from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Config holds capability-bridge configuration.
type Config struct {
	// COMMS: the broker the provider listens on.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"capability-bridge"`

	// Provider addressing and handshake
	ProviderSubject string `envconfig:"BRIDGE_PROVIDER_SUBJECT" default:"cap.bridge.provider.v1"`
	ProtocolRange   string `envconfig:"BRIDGE_PROTOCOL_RANGE" default:"^1.0.0"`

	// Timeouts
	ConnectTimeout time.Duration `envconfig:"BRIDGE_CONNECT_TIMEOUT" default:"10s"`
	RequestTimeout time.Duration `envconfig:"BRIDGE_REQUEST_TIMEOUT" default:"10s"`
	InvokeTimeout  time.Duration `envconfig:"BRIDGE_INVOKE_TIMEOUT" default:"60s"`

	// History
	HistoryCapacity int    `envconfig:"BRIDGE_HISTORY_CAPACITY" default:"10"`
	HistorySinkURL  string `envconfig:"BRIDGE_HISTORY_SINK_URL"`
	MirrorBuffer    int    `envconfig:"BRIDGE_HISTORY_MIRROR_BUFFER" default:"64"`
	RunMigrations   bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath   string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// Recorded-invocation events
	PublishEvents        bool   `envconfig:"BRIDGE_PUBLISH_EVENTS" default:"false"`
	RecordedEventSubject string `envconfig:"BRIDGE_RECORDED_EVENT_SUBJECT"`
	KafkaBrokers         string `envconfig:"BRIDGE_KAFKA_BROKERS"`
	KafkaTopic           string `envconfig:"BRIDGE_KAFKA_TOPIC" default:"bridge.invocations.recorded"`

	// Language model (OpenAI-compatible). Without an API key the keyword planner is used.
	LLMAPIKey      string        `envconfig:"OPENAI_API_KEY"`
	LLMAPIBase     string        `envconfig:"LLM_API_BASE" default:"https://api.openai.com/v1"`
	LLMModel       string        `envconfig:"LLM_MODEL" default:"gpt-4o-mini"`
	LLMTimeout     time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`
	LLMAnswerWords int           `envconfig:"LLM_ANSWER_WORDS" default:"50"`

	// Sample provider
	ProviderManifestFile string `envconfig:"PROVIDER_MANIFEST_FILE"`
	ProviderRoot         string `envconfig:"PROVIDER_ROOT" default:"."`

	// HTTP frontend (REGISTRY_HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr           string        `envconfig:"REGISTRY_HTTP_ADDR"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListenAddr is the HTTP listen address: HTTPAddr when set, else all interfaces on HTTPPort.
func (c *Config) ListenAddr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf("0.0.0.0:%d", c.HTTPPort)
}

// UseLLM reports whether an LLM planner and composer are configured.
func (c *Config) UseLLM() bool {
	return c.LLMAPIKey != ""
}

// SlogLevel maps LogLevel to a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidateForRun checks the config needed to connect and run instructions.
func (c *Config) ValidateForRun() error {
	if c.COMMSURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required", logPrefix)
	}
	if c.ProviderSubject == "" {
		return fmt.Errorf("%s - BRIDGE_PROVIDER_SUBJECT is required", logPrefix)
	}
	if c.ConnectTimeout <= 0 || c.RequestTimeout <= 0 || c.InvokeTimeout <= 0 {
		return fmt.Errorf("%s - BRIDGE_CONNECT_TIMEOUT, BRIDGE_REQUEST_TIMEOUT and BRIDGE_INVOKE_TIMEOUT must be positive", logPrefix)
	}
	if c.HistoryCapacity <= 0 {
		return fmt.Errorf("%s - BRIDGE_HISTORY_CAPACITY must be positive", logPrefix)
	}
	if c.UseLLM() {
		if c.LLMAPIBase == "" || c.LLMModel == "" {
			return fmt.Errorf("%s - LLM_API_BASE and LLM_MODEL are required when OPENAI_API_KEY is set", logPrefix)
		}
		if c.LLMAnswerWords <= 0 {
			return fmt.Errorf("%s - LLM_ANSWER_WORDS must be positive", logPrefix)
		}
	}
	return nil
}

// ValidateForServe checks required config when running the HTTP frontend.
func (c *Config) ValidateForServe() error {
	if err := c.ValidateForRun(); err != nil {
		return err
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if c.PublishEvents && c.KafkaBrokers == "" && c.COMMSURL == "" {
		return fmt.Errorf("%s - BRIDGE_PUBLISH_EVENTS needs COMMS_URL or BRIDGE_KAFKA_BROKERS", logPrefix)
	}
	return nil
}

// ValidateForProvider checks required config when running the sample provider.
func (c *Config) ValidateForProvider() error {
	if c.COMMSURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required", logPrefix)
	}
	if c.ProviderSubject == "" {
		return fmt.Errorf("%s - BRIDGE_PROVIDER_SUBJECT is required", logPrefix)
	}
	if c.ProviderRoot == "" {
		return fmt.Errorf("%s - PROVIDER_ROOT is required", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, history).
func (c *Config) ValidateForDB() error {
	if c.HistorySinkURL == "" {
		return fmt.Errorf("%s - BRIDGE_HISTORY_SINK_URL is required", logPrefix)
	}
	return nil
}

// ValidateForMigrate checks that the history sink is a Postgres database.
func (c *Config) ValidateForMigrate() error {
	if err := c.ValidateForDB(); err != nil {
		return err
	}
	if !strings.HasPrefix(c.HistorySinkURL, "postgres://") && !strings.HasPrefix(c.HistorySinkURL, "postgresql://") {
		return fmt.Errorf("%s - migrations only apply to a postgres BRIDGE_HISTORY_SINK_URL", logPrefix)
	}
	return nil
}
