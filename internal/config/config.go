// Package config loads the server configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config is the complete server configuration. Every field has a usable
// default except the secrets (SMTP password, MongoDB URI).
type Config struct {
	AppEnv string `env:"APP_ENV" env-default:"development" env-description:"development or production"`
	Port   int    `env:"PORT" env-default:"5001" env-description:"HTTP port"`

	Store Store
	SMTP  SMTP

	CodeTTL         time.Duration `env:"CODE_TTL" env-default:"10m" env-description:"lifetime of verification codes and reset tokens"`
	ExposeCodes     bool          `env:"EXPOSE_CODES" env-default:"false" env-description:"include the raw verification code in register responses"`
	DisplayTimezone string        `env:"DISPLAY_TIMEZONE" env-default:"America/New_York" env-description:"zone used to show expiry times"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-default:"*" env-separator:"," env-description:"allowed CORS origins"`

	LogLevel  string `env:"LOG_LEVEL" env-default:"info" env-description:"debug, info, warn or error"`
	LogFormat string `env:"LOG_FORMAT" env-default:"text" env-description:"text or json"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"30s" env-description:"graceful shutdown budget"`
}

// Store selects and configures the persistence backend.
type Store struct {
	Driver        string `env:"STORE_DRIVER" env-default:"sqlite" env-description:"sqlite or mongo"`
	DBPath        string `env:"DB_PATH" env-default:"data/showdex.db" env-description:"SQLite database file"`
	MongoURI      string `env:"MONGODB_URI" env-description:"MongoDB connection string"`
	MongoDatabase string `env:"MONGODB_DATABASE" env-default:"COP4331_MERN_STACK" env-description:"MongoDB database name"`
}

// SMTP configures outbound mail. With no password, mail is logged instead
// of sent.
type SMTP struct {
	Host     string `env:"SMTP_HOST" env-default:"smtp.sendgrid.net"`
	Port     int    `env:"SMTP_PORT" env-default:"2525"`
	Username string `env:"SMTP_USERNAME" env-default:"apikey"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"EMAIL_FROM" env-default:"no-reply@showdex.app"`
	FromName string `env:"EMAIL_FROM_NAME" env-default:"Showdex"`
}

// Enabled reports whether real delivery is configured.
func (s SMTP) Enabled() bool {
	return s.Password != ""
}

// Load reads envFile (if it exists) into the process environment without
// overriding variables that are already set, then parses the environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: loading %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field rules.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite driver"))
		}
	case DriverMongo:
		if c.Store.MongoURI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required for the mongo driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not one of sqlite, mongo", c.Store.Driver))
	}

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if c.CodeTTL <= 0 {
		errs = append(errs, fmt.Errorf("CODE_TTL must be positive, got %s", c.CodeTTL))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q is not one of text, json", c.LogFormat))
	}

	if _, err := time.LoadLocation(c.DisplayTimezone); err != nil {
		errs = append(errs, fmt.Errorf("DISPLAY_TIMEZONE: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Location returns the display time zone, or UTC if it cannot be loaded.
// Validate has already rejected unknown zones.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

// Usage describes every environment variable, for --help output.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return err.Error()
	}
	return text
}
