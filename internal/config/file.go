package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML overlay. Only keys present in the file override the
// environment; unknown keys are rejected.
type fileConfig struct {
	Owners     []string `yaml:"owners"`
	Admins     []string `yaml:"admins"`
	Moderators []string `yaml:"moderators"`
	Support    []string `yaml:"support"`

	SupportCanManageTickets *bool `yaml:"support_can_manage_tickets"`

	Cooldowns *struct {
		Default  *int           `yaml:"default"`
		Commands map[string]int `yaml:"commands"`
	} `yaml:"cooldowns"`

	RateLimit *struct {
		Limit    *int   `yaml:"limit"`
		WindowMs *int64 `yaml:"window_ms"`
	} `yaml:"rate_limit"`

	LimiterBackend *string `yaml:"limiter_backend"`

	AuditStreams map[string]string `yaml:"audit_streams"`

	Timeouts *struct {
		Persistence *time.Duration `yaml:"persistence"`
		Mirror      *time.Duration `yaml:"mirror"`
		Handler     *time.Duration `yaml:"handler"`
	} `yaml:"timeouts"`
}

func (c *Config) applyFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return c.applyYAML(f)
}

func (c *Config) applyYAML(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var fc fileConfig
	if err := dec.Decode(&fc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode: %w", err)
	}

	if fc.Owners != nil {
		c.OwnerIDs = fc.Owners
	}
	if fc.Admins != nil {
		c.AdminIDs = fc.Admins
	}
	if fc.Moderators != nil {
		c.ModeratorIDs = fc.Moderators
	}
	if fc.Support != nil {
		c.SupportIDs = fc.Support
	}
	if fc.SupportCanManageTickets != nil {
		c.SupportCanManageTickets = *fc.SupportCanManageTickets
	}
	if fc.Cooldowns != nil {
		if fc.Cooldowns.Default != nil {
			c.DefaultCooldownSeconds = *fc.Cooldowns.Default
		}
		if fc.Cooldowns.Commands != nil {
			c.CommandCooldowns = fc.Cooldowns.Commands
		}
	}
	if fc.RateLimit != nil {
		if fc.RateLimit.Limit != nil {
			c.RateLimitDefault = *fc.RateLimit.Limit
		}
		if fc.RateLimit.WindowMs != nil {
			c.RateLimitWindow = time.Duration(*fc.RateLimit.WindowMs) * time.Millisecond
		}
	}
	if fc.LimiterBackend != nil {
		c.LimiterBackend = *fc.LimiterBackend
	}
	if fc.AuditStreams != nil {
		c.AuditStreams = fc.AuditStreams
	}
	if fc.Timeouts != nil {
		if fc.Timeouts.Persistence != nil {
			c.PersistenceTimeout = *fc.Timeouts.Persistence
		}
		if fc.Timeouts.Mirror != nil {
			c.MirrorTimeout = *fc.Timeouts.Mirror
		}
		if fc.Timeouts.Handler != nil {
			c.HandlerTimeout = *fc.Timeouts.Handler
		}
	}
	return nil
}
