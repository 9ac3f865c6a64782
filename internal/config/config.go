package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds process configuration, loaded from the environment.
type Config struct {
	Port             string        `envconfig:"PORT" default:"3000"`
	JWTSecret        string        `envconfig:"JWT_SECRET" default:"talkio-secret-key-change-in-production"`
	TokenTTL         time.Duration `envconfig:"TOKEN_TTL" default:"168h"`
	RateLimitMax     int           `envconfig:"RATE_LIMIT_MAX" default:"30"`
	RateLimitWindow  time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"60s"`
	MaxMessageLength int           `envconfig:"MAX_MESSAGE_LENGTH" default:"1000"`
	StaticDir        string        `envconfig:"STATIC_DIR"`
	AMQPURL          string        `envconfig:"AMQP_URL"`
	AMQPExchange     string        `envconfig:"AMQP_EXCHANGE" default:"talkio.events"`
	AuditRoutingKey  string        `envconfig:"AUDIT_ROUTING_KEY" default:"audit_log.talkio"`
	Environment      string        `envconfig:"ENVIRONMENT" default:"development"`
	OTLPEndpoint     string        `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	DebugRoutes      bool          `envconfig:"DEBUG_ROUTES" default:"false"`
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
