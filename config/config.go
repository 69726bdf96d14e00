package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

type Config struct {
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080" validate:"required"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" validate:"gt=0"`

	StoreDriver   string `envconfig:"STORE_DRIVER" default:"sqlite" validate:"oneof=sqlite postgres mongo memory"`
	SQLitePath    string `envconfig:"SQLITE_PATH" default:"messageboard.db" validate:"required_if=StoreDriver sqlite"`
	PostgresDSN   string `envconfig:"POSTGRES_DSN" validate:"required_if=StoreDriver postgres"`
	MongoURI      string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017" validate:"required_if=StoreDriver mongo"`
	MongoDatabase string `envconfig:"MONGO_DATABASE" default:"messageboard"`

	// Kafka fan-out is disabled when no brokers are listed.
	KafkaBrokers  []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic    string   `envconfig:"KAFKA_TOPIC" default:"board-messages" validate:"required"`
	KafkaDLQTopic string   `envconfig:"KAFKA_DLQ_TOPIC" default:"board-messages-dlq" validate:"required"`

	// Write endpoints are open when no issuer is set.
	OIDCIssuer       string `envconfig:"OIDC_ISSUER_URL" validate:"omitempty,url"`
	OIDCClientID     string `envconfig:"OIDC_CLIENT_ID" default:"messageboard"`
	OIDCAudience     string `envconfig:"OIDC_AUDIENCE"`
	OIDCMaxAttempts  int    `envconfig:"OIDC_MAX_ATTEMPTS" default:"8" validate:"min=1"`
	OIDCCACertFile   string `envconfig:"OIDC_CA_CERT_FILE"`
	OIDCDialOverride string `envconfig:"OIDC_DIAL_OVERRIDE" validate:"omitempty,hostname_port"`

	MaxMessageLength  int    `envconfig:"MAX_MESSAGE_LENGTH" default:"1000" validate:"min=1"`
	MessageSchemaFile string `envconfig:"MESSAGE_SCHEMA_FILE" validate:"omitempty,file"`
	PageLimit         int    `envconfig:"PAGE_LIMIT" default:"0" validate:"min=0"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json console"`
	LogFile   string `envconfig:"LOG_FILE"`
}

// KafkaEnabled reports whether a broker list was configured.
func (c Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// AuthEnabled reports whether write endpoints require an ID token.
func (c Config) AuthEnabled() bool { return c.OIDCIssuer != "" }

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the environment alone.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
