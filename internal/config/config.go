package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	App        AppConfig
	Store      StoreConfig
	JWT        JWTConfig
	Invitation InvitationConfig
	LiveKit    LiveKitConfig
	Policy     PolicyConfig
	OAuth2     OAuth2GoogleConfig
	Mail       MailConfig
	Janitor    JanitorConfig
}

// AppConfig holds application configuration
type AppConfig struct {
	Port          int      `env:"APP_PORT" envDefault:"8080"`
	Env           string   `env:"APP_ENV" envDefault:"development"`
	LogLevel      string   `env:"LOG_LEVEL" envDefault:"info"`
	FrontendURL   string   `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	CSPConnectSrc []string `env:"CSP_CONNECT_SRC" envSeparator:","`
}

// StoreConfig selects and configures the invitation store
type StoreConfig struct {
	Driver      string        `env:"STORE_DRIVER" envDefault:"sqlite"`
	DatabaseURL string        `env:"DATABASE_URL"`
	SQLitePath  string        `env:"SQLITE_PATH" envDefault:"data/consult-gate.db"`
	Timeout     time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
}

// JWTConfig holds doctor session token configuration
type JWTConfig struct {
	Secret           string `env:"JWT_SECRET_KEY"`
	AccessExpiration string `env:"JWT_ACCESS_EXPIRATION_TIME" envDefault:"8h"`
}

// InvitationConfig holds invitation token configuration
type InvitationConfig struct {
	TokenSecret    string `env:"INVITE_TOKEN_SECRET"`
	MaxHours       int    `env:"INVITE_MAX_HOURS" envDefault:"168"`
	DefaultMaxUses int    `env:"INVITE_DEFAULT_MAX_USES" envDefault:"1"`
	FrontendURL    string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
}

// LiveKitConfig holds video grant signing configuration
type LiveKitConfig struct {
	APIKey          string        `env:"LIVEKIT_API_KEY"`
	APISecret       string        `env:"LIVEKIT_API_SECRET"`
	URL             string        `env:"LIVEKIT_URL"`
	PatientTokenTTL time.Duration `env:"PATIENT_TOKEN_TTL" envDefault:"2h"`
	DoctorTokenTTL  time.Duration `env:"DOCTOR_TOKEN_TTL" envDefault:"6h"`
}

// PolicyConfig decides whether device and geo mismatches deny or only log
type PolicyConfig struct {
	Device string `env:"DEVICE_POLICY" envDefault:"deny"`
	Geo    string `env:"GEO_POLICY" envDefault:"log"`
}

type OAuth2GoogleConfig struct {
	ClientID     string   `env:"GOOGLE_CLIENT_ID"`
	ClientSecret string   `env:"GOOGLE_CLIENT_SECRET"`
	RedirectURL  string   `env:"GOOGLE_REDIRECT_URL"`
	Scopes       []string `env:"GOOGLE_SCOPES" envSeparator:"," envDefault:"openid,email"`
	DoctorEmails []string `env:"DOCTOR_EMAILS" envSeparator:","`
}

// MailConfig selects the invite delivery provider
type MailConfig struct {
	Provider        string `env:"MAIL_PROVIDER" envDefault:"noop"`
	FromAddress     string `env:"MAIL_FROM"`
	FromName        string `env:"MAIL_FROM_NAME" envDefault:"Telecare"`
	Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
}

// JanitorConfig drives the expiry and retention sweeps
type JanitorConfig struct {
	Interval  time.Duration `env:"JANITOR_INTERVAL" envDefault:"15m"`
	Retention time.Duration `env:"RETENTION_PERIOD" envDefault:"720h"`
}

func Load() (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load(); err != nil {
			slog.Warn(".env file not found, using process environment", "error", err)
		}
	}

	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if c.Invitation.TokenSecret == "" {
		return fmt.Errorf("INVITE_TOKEN_SECRET is required")
	}
	if c.Invitation.TokenSecret == c.JWT.Secret {
		return fmt.Errorf("INVITE_TOKEN_SECRET must differ from JWT_SECRET_KEY")
	}
	if c.Invitation.MaxHours <= 0 {
		return fmt.Errorf("INVITE_MAX_HOURS must be positive")
	}
	if c.Invitation.DefaultMaxUses <= 0 {
		return fmt.Errorf("INVITE_DEFAULT_MAX_USES must be positive")
	}
	if c.LiveKit.APIKey == "" || c.LiveKit.APISecret == "" {
		return fmt.Errorf("LIVEKIT_API_KEY and LIVEKIT_API_SECRET are required")
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}

	for name, value := range map[string]string{"DEVICE_POLICY": c.Policy.Device, "GEO_POLICY": c.Policy.Geo} {
		if value != "deny" && value != "log" {
			return fmt.Errorf("%s must be deny or log, got %q", name, value)
		}
	}
	return nil
}

// NewLogger returns a slog.Logger for the configured environment.
// Production uses the JSON handler; otherwise the text handler.
func (c *Config) NewLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(c.App.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if c.App.Env == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
