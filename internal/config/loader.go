package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if ACWS_CONFIG is set
//  3. env (prefix ACWS_)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("ACWS_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: ACWS_ADDR, ACWS_DATA_DIR, ACWS_DEBOUNCE_MS, ...
	// Map env keys like ACWS_DEBOUNCE_MS -> debounce_ms (flat keys).
	envProvider := env.Provider("ACWS_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "acws_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DataDir == "":
		return fmt.Errorf("%w: data_dir must not be empty", ErrInvalidConfig)
	case c.DebounceMS <= 0:
		return fmt.Errorf("%w: debounce_ms must be positive", ErrInvalidConfig)
	case c.ThrottleMS <= 0:
		return fmt.Errorf("%w: throttle_ms must be positive", ErrInvalidConfig)
	case c.MaxSimID <= 0:
		return fmt.Errorf("%w: max_sim_id must be positive", ErrInvalidConfig)
	case c.DefaultEvent == "":
		return fmt.Errorf("%w: default_event must not be empty", ErrInvalidConfig)
	}
	return nil
}
