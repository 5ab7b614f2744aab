// Package config loads message board settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds settings shared by the server and client commands. Command
// line flags override these values.
type Config struct {
	Addr           string        `env:"MSGBOARD_ADDR,default=127.0.0.1:12345" validate:"required,hostname_port"`
	LogLevel       string        `env:"MSGBOARD_LOG_LEVEL,default=info" validate:"oneof=trace debug info warn error"`
	LogDir         string        `env:"MSGBOARD_LOG_DIR"`
	MetricsAddr    string        `env:"MSGBOARD_METRICS_ADDR" validate:"omitempty,hostname_port"`
	MemberTTL      time.Duration `env:"MSGBOARD_MEMBER_TTL,default=0s" validate:"gte=0"`
	ReceiveTimeout time.Duration `env:"MSGBOARD_RECEIVE_TIMEOUT,default=1s" validate:"gt=0"`
	NoColor        bool          `env:"MSGBOARD_NO_COLOR,default=false"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load builds a Config from environ, a list of "KEY=value" strings as returned
// by os.Environ, and validates it.
func Load(environ []string) (Config, error) {
	es, err := env.EnvironToEnvSet(environ)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	var c Config
	if err := env.Unmarshal(es, &c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// FromEnviron loads the named .env files (".env" when none are given) into
// the process environment without overriding variables already set, then
// calls Load with os.Environ. Missing .env files are not an error.
func FromEnviron(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	return Load(os.Environ())
}

// Validate checks field constraints. It is called again after flag overrides.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	return nil
}
