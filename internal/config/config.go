package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the server.
type Config struct {
	Port         string `env:"PORT,default=8008"`
	DatabasePath string `env:"DATABASE_PATH,default=chat-hub.db"`
	LogLevel     string `env:"LOG_LEVEL,default=info"`
	ClientURLs   string `env:"CLIENT_URL,default=http://localhost:3000"`

	JWTSecret   string        `env:"JWT_SECRET,default=development-insecure-secret-change-me"`
	JWTIssuer   string        `env:"JWT_ISSUER,default=chat-hub"`
	JWTAudience string        `env:"JWT_AUDIENCE,default=chat-hub-clients"`
	TokenTTL    time.Duration `env:"TOKEN_TTL,default=24h"`

	// PersistTimeout bounds every storage call made from the hub.
	PersistTimeout time.Duration `env:"PERSIST_TIMEOUT,default=5s"`

	SendBuffer     int           `env:"WS_SEND_BUFFER,default=256"`
	MaxMessageSize int64         `env:"WS_MAX_MESSAGE_SIZE,default=65536"`
	PingInterval   time.Duration `env:"WS_PING_INTERVAL,default=30s"`
	PongWait       time.Duration `env:"WS_PONG_WAIT,default=60s"`
	WriteWait      time.Duration `env:"WS_WRITE_WAIT,default=5s"`
	RateLimit      float64       `env:"WS_RATE_LIMIT,default=20"`
	RateBurst      int           `env:"WS_RATE_BURST,default=40"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=30s"`
}

// Default returns the configuration described by the struct tag defaults,
// as if no environment were set.
func Default() Config {
	var cfg Config
	if err := env.Unmarshal(env.EnvSet{}, &cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	}
	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	for name, d := range map[string]time.Duration{
		"TOKEN_TTL":        c.TokenTTL,
		"PERSIST_TIMEOUT":  c.PersistTimeout,
		"WS_PING_INTERVAL": c.PingInterval,
		"WS_PONG_WAIT":     c.PongWait,
		"WS_WRITE_WAIT":    c.WriteWait,
		"SHUTDOWN_TIMEOUT": c.ShutdownTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.PingInterval >= c.PongWait {
		errs = append(errs, errors.New("WS_PING_INTERVAL must be shorter than WS_PONG_WAIT"))
	}
	if c.SendBuffer <= 0 || c.MaxMessageSize <= 0 || c.RateBurst <= 0 || c.RateLimit <= 0 {
		errs = append(errs, errors.New("websocket buffer, size and rate settings must be positive"))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + strings.TrimPrefix(c.Port, ":")
}

// AllowedOrigins splits ClientURLs into trimmed, non-empty origins.
func (c Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.ClientURLs, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, strings.TrimSuffix(o, "/"))
		}
	}
	return out
}
