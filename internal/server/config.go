package server

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds the relay settings. Fields left unset in the environment keep
// the values from defaultConfig.
type Config struct {
	TCPAddr         string        `env:"CHAT_TCP_ADDR" validate:"required"`
	HTTPAddr        string        `env:"CHAT_HTTP_ADDR" validate:"required"`
	UsersFile       string        `env:"CHAT_USERS_FILE" validate:"required"`
	Origins         string        `env:"CHAT_ALLOWED_ORIGINS"`
	MaxMessageSize  int           `env:"CHAT_MAX_MESSAGE_SIZE" validate:"min=64,max=65536"`
	WriteTimeout    time.Duration `env:"CHAT_WRITE_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout time.Duration `env:"CHAT_SHUTDOWN_TIMEOUT" validate:"gt=0"`
	LogLevel        string        `env:"LOG_LEVEL" validate:"oneof=DEBUG INFO WARN ERROR"`

	// AllowedOrigins is Origins split and normalised by sanitizeConfig.
	AllowedOrigins []string
	// AllowAllOrigins is set when Origins contains "*".
	AllowAllOrigins bool
}

var validate = validator.New()

func defaultConfig() Config {
	return Config{
		TCPAddr:         ":12345",
		HTTPAddr:        ":8080",
		UsersFile:       "users.txt",
		Origins:         "http://localhost:8080",
		MaxMessageSize:  1024,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		LogLevel:        "INFO",
	}
}

// NewConfig returns the defaults, sanitised.
func NewConfig() *Config {
	cfg := sanitizeConfig(defaultConfig())
	return &cfg
}

// LoadConfig reads .env when present, overlays the process environment on the
// defaults and validates the result.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	cfg.LogLevel = strings.ToUpper(strings.TrimSpace(cfg.LogLevel))
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg = sanitizeConfig(cfg)
	return &cfg, nil
}

func sanitizeConfig(cfg Config) Config {
	normalized, allowAll := normalizeOrigins(parseOrigins(cfg.Origins))
	cfg.AllowedOrigins = normalized
	cfg.AllowAllOrigins = allowAll
	return cfg
}

func parseOrigins(origins string) []string {
	if strings.TrimSpace(origins) == "" {
		return nil
	}
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
