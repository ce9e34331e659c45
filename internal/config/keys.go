package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrUnknownKey is returned for a configuration key fanout does not define.
var ErrUnknownKey = errors.New("unknown configuration key")

type keyAccessor struct {
	get func(*Config) string
	set func(*Config, string) error
}

var keys = map[string]keyAccessor{
	"balancer.step_weight": {
		get: func(c *Config) string { return strconv.FormatFloat(c.Balancer.StepWeight, 'g', -1, 64) },
		set: func(c *Config, s string) error {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return err
			}
			if f < 0 {
				return fmt.Errorf("must not be negative")
			}
			c.Balancer.StepWeight = f
			return nil
		},
	},
	"balancer.require_tier_clearance": {
		get: func(c *Config) string { return strconv.FormatBool(c.Balancer.RequireTierClearance) },
		set: func(c *Config, s string) error {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return err
			}
			c.Balancer.RequireTierClearance = b
			return nil
		},
	},
	"dispatch.timeout": {
		get: func(c *Config) string { return c.Dispatch.Timeout.String() },
		set: func(c *Config, s string) error {
			d, err := parseDuration(s)
			if err != nil {
				return err
			}
			c.Dispatch.Timeout = d
			return nil
		},
	},
	"engine.system_tools": {
		get: func(c *Config) string { return strings.Join(c.Engine.SystemTools, ",") },
		set: func(c *Config, s string) error {
			c.Engine.SystemTools = splitList(s)
			return nil
		},
	},
	"engine.step_delay": {
		get: func(c *Config) string { return c.Engine.StepDelay.String() },
		set: func(c *Config, s string) error {
			d, err := parseDuration(s)
			if err != nil {
				return err
			}
			c.Engine.StepDelay = d
			return nil
		},
	},
	"logging.path": {
		get: func(c *Config) string { return c.Logging.Path },
		set: func(c *Config, s string) error {
			c.Logging.Path = s
			return nil
		},
	},
	"state.path": {
		get: func(c *Config) string { return c.State.Path },
		set: func(c *Config, s string) error {
			c.State.Path = s
			return nil
		},
	},
}

// Keys returns every configuration key in display order.
func Keys() []string {
	return []string{
		"balancer.step_weight",
		"balancer.require_tier_clearance",
		"dispatch.timeout",
		"engine.system_tools",
		"engine.step_delay",
		"logging.path",
		"state.path",
	}
}

// Get returns the value of key formatted for display.
func (c *Config) Get(key string) (string, error) {
	k, ok := keys[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return k.get(c), nil
}

// Set parses value and stores it under key.
func (c *Config) Set(key, value string) error {
	k, ok := keys[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	if err := k.set(c, strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid value %q for %s: %w", value, key, err)
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return d, nil
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
