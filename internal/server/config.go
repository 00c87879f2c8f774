// Package server provides configuration loading with runtime defaults and
// sanitizing of out-of-range values.
package server

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the runtime settings of the relay server.
type Config struct {
	// Port is the listen address, e.g. ":5007".
	Port string `envconfig:"SERVER_PORT" default:":5007"`

	// AllowedOrigins lists the origins accepted for WebSocket upgrades.
	// A single "*" entry allows any origin.
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:5173"`

	// MaxMessageSize caps an inbound frame in bytes.
	MaxMessageSize int64 `envconfig:"MAX_MESSAGE_SIZE" default:"4096"`

	// StoreTimeout bounds every durable store call.
	StoreTimeout time.Duration `envconfig:"STORE_TIMEOUT" default:"10s"`

	// TypingTTL is the inactivity window after which a typing episode is
	// considered over.
	TypingTTL time.Duration `envconfig:"TYPING_TTL" default:"2s"`

	// SendRateLimit and SendRateBurst throttle sendMessage frames per
	// connection. Typing events are deliberately not throttled.
	SendRateLimit float64 `envconfig:"SEND_RATE_LIMIT" default:"5"`
	SendRateBurst int     `envconfig:"SEND_RATE_BURST" default:"10"`

	// DataDir is the Badger database directory.
	DataDir string `envconfig:"DATA_DIR" default:"./data"`

	// ShutdownTimeout bounds the graceful drain on exit.
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// LoadConfig reads configuration from the environment, falling back to
// defaults and clamping invalid values.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	cfg.sanitize()
	return &cfg, nil
}

// NewConfig returns the default configuration, used by tests and local runs.
func NewConfig() *Config {
	cfg := &Config{
		Port:            ":5007",
		AllowedOrigins:  []string{"http://localhost:5173"},
		MaxMessageSize:  4096,
		StoreTimeout:    10 * time.Second,
		TypingTTL:       2 * time.Second,
		SendRateLimit:   5,
		SendRateBurst:   10,
		DataDir:         "./data",
		ShutdownTimeout: 10 * time.Second,
	}
	cfg.sanitize()
	return cfg
}

func (c *Config) sanitize() {
	c.Port = strings.TrimSpace(c.Port)
	if c.Port == "" {
		c.Port = ":5007"
	}
	if !strings.Contains(c.Port, ":") {
		c.Port = ":" + c.Port
	}

	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 10 * time.Second
	}
	if c.TypingTTL <= 0 {
		c.TypingTTL = 2 * time.Second
	}
	if c.SendRateLimit <= 0 {
		c.SendRateLimit = 5
	}
	if c.SendRateBurst <= 0 {
		c.SendRateBurst = 1
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}
