package config

import (
	"fmt"
	netmail "net/mail"
	"time"

	pkgconfig "github.com/meetingfeedback/ratings/pkg/config"
)

// Mail transports.
const (
	MailTransportMock  = "mock"
	MailTransportGraph = "graph"
)

// Recorder backends.
const (
	RecorderPostgres   = "postgres"
	RecorderWebService = "webservice"
)

// Config holds all configuration for the rating service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort       int           `env:"RATING_HTTP_PORT" envDefault:"8080"`
	RequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"30s"`
	CORSOrigins    []string      `env:"CORS_ORIGINS" envSeparator:","`
	PprofCIDRs     []string      `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`

	// Database
	DBHost               string        `env:"DB_HOST" envDefault:"localhost"`
	DBPort               int           `env:"DB_PORT" envDefault:"5432"`
	DBUser               string        `env:"DB_USER" envDefault:"ratings"`
	DBPassword           string        `env:"DB_PASSWORD" envDefault:"ratings"`
	DBName               string        `env:"DB_NAME" envDefault:"meetingfeedback"`
	DBSSLMode            string        `env:"DB_SSLMODE" envDefault:"disable"`
	SlowQueryThreshold   time.Duration `env:"DB_SLOW_QUERY_THRESHOLD" envDefault:"200ms"`
	RunMigrationsOnStart bool          `env:"DB_RUN_MIGRATIONS" envDefault:"true"`

	// Redis. An empty address disables the meeting cache and the outcome store.
	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPass       string        `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	MeetingCacheTTL time.Duration `env:"MEETING_CACHE_TTL" envDefault:"5m"`
	OutcomeTTL      time.Duration `env:"OUTCOME_TTL" envDefault:"168h"`

	// Kafka. No brokers means no inbound consumer and no outcome events.
	KafkaBrokers   []string      `env:"KAFKA_BROKERS" envSeparator:","`
	IdempotencyTTL time.Duration `env:"KAFKA_IDEMPOTENCY_TTL" envDefault:"24h"`

	// Mail
	MailTransport    string  `env:"MAIL_TRANSPORT" envDefault:"mock"`
	GraphBaseURL     string  `env:"GRAPH_BASE_URL" envDefault:"https://outlook.office.com/api/v2.0"`
	GraphAccessToken string  `env:"GRAPH_ACCESS_TOKEN"`
	MailRateLimit    float64 `env:"MAIL_RATE_LIMIT" envDefault:"0"`
	MailRateBurst    int     `env:"MAIL_RATE_BURST" envDefault:"1"`

	// Reviewer identity used as sender of every review mail
	SenderName    string `env:"REVIEW_SENDER_NAME" envDefault:"Meeting Feedback"`
	SenderAddress string `env:"REVIEW_SENDER_ADDRESS" envDefault:"feedback@example.com"`

	// Recording
	RecorderBackend  string `env:"RECORDER_BACKEND" envDefault:"postgres"`
	RatingServiceURL string `env:"RATING_SERVICE_URL"`

	DisplayTimezone string `env:"DISPLAY_TIMEZONE" envDefault:"UTC"`

	// Tracing
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load rating config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Location resolves DisplayTimezone. validate has already checked it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// KafkaEnabled reports whether any broker is configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// RedisEnabled reports whether a Redis address is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.DBPort < 1 || c.DBPort > 65535 {
		return fmt.Errorf("invalid DB port: %d", c.DBPort)
	}

	switch c.MailTransport {
	case MailTransportMock:
	case MailTransportGraph:
		if c.GraphAccessToken == "" {
			return fmt.Errorf("GRAPH_ACCESS_TOKEN is required when MAIL_TRANSPORT=%s", MailTransportGraph)
		}
	default:
		return fmt.Errorf("invalid MAIL_TRANSPORT %q: must be %s or %s", c.MailTransport, MailTransportMock, MailTransportGraph)
	}

	switch c.RecorderBackend {
	case RecorderPostgres:
	case RecorderWebService:
		if c.RatingServiceURL == "" {
			return fmt.Errorf("RATING_SERVICE_URL is required when RECORDER_BACKEND=%s", RecorderWebService)
		}
	default:
		return fmt.Errorf("invalid RECORDER_BACKEND %q: must be %s or %s", c.RecorderBackend, RecorderPostgres, RecorderWebService)
	}

	if _, err := netmail.ParseAddress(c.SenderAddress); err != nil {
		return fmt.Errorf("invalid REVIEW_SENDER_ADDRESS %q: %w", c.SenderAddress, err)
	}
	if _, err := time.LoadLocation(c.DisplayTimezone); err != nil {
		return fmt.Errorf("invalid DISPLAY_TIMEZONE %q: %w", c.DisplayTimezone, err)
	}
	if c.MailRateLimit < 0 {
		return fmt.Errorf("MAIL_RATE_LIMIT must not be negative: %v", c.MailRateLimit)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %v", c.OTELSampleRate)
	}
	return nil
}
