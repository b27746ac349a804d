package whisper

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is read from the environment, optionally seeded from .env files
type Config struct {
	Port     int    `env:"PORT" envDefault:"3000"`
	StoreURL string `env:"STORE_URL" envDefault:"file://./data"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Signs the OAuth state. A random per-process key is used when unset.
	SessionSecret   string        `env:"SESSION_SECRET"`
	SessionLifetime time.Duration `env:"SESSION_LIFETIME" envDefault:"24h"`
	SecureCookies   bool          `env:"SECURE_COOKIES" envDefault:"false"`

	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	CallbackURL  string `env:"CALLBACK_URL" envDefault:"http://localhost:3000/auth/google/secrets"`

	// Field encryption keys for the vault. The first one encrypts.
	EncryptionKeys []string `env:"SECRET" envSeparator:","`
}

// LoadConfig loads the given .env files (default ".env") if they exist and then
// parses the environment. Variables already set take precedence over the files.
func LoadConfig(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error loading %s: %w", f, err)
		}
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing environment: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// GoogleEnabled reports whether OAuth client credentials were configured
func (c *Config) GoogleEnabled() bool {
	return c.ClientID != ""
}

// StateKey returns the key used to sign OAuth state, or nil for a random one
func (c *Config) StateKey() []byte {
	if c.SessionSecret == "" {
		return nil
	}
	return []byte(c.SessionSecret)
}

// ValidateServer checks the settings the session-backed server needs
func (c *Config) ValidateServer() error {
	if (c.ClientID == "") != (c.ClientSecret == "") {
		return fmt.Errorf("CLIENT_ID and CLIENT_SECRET must be set together")
	}
	if c.GoogleEnabled() && c.CallbackURL == "" {
		return fmt.Errorf("CALLBACK_URL is required when Google sign-in is enabled")
	}
	if c.SessionSecret == "" {
		slog.Warn("SESSION_SECRET is not set, using a random per-process key")
	}
	return nil
}

// ValidateVault checks the settings the vault needs
func (c *Config) ValidateVault() error {
	keys := c.EncryptionKeys[:0:0]
	for _, k := range c.EncryptionKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return fmt.Errorf("SECRET must hold at least one encryption key")
	}
	c.EncryptionKeys = keys
	return nil
}

// NewLogger builds a text logger at the named level ("debug", "info", "warn", "error")
func NewLogger(level string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}
