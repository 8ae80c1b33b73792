package scheduler

import (
	"strings"
	"time"

	"github.com/vilosource/cielo-azure-billing/internal/config"
)

// Config controls when sources are fetched.
type Config struct {
	Enabled       bool
	Schedule      string
	SourceTimeout time.Duration
	JobTimeout    time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		Schedule:      "0 2 * * *",
		SourceTimeout: 30 * time.Minute,
		JobTimeout:    6 * time.Hour,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:       cfg.Fetch.SchedulerEnable,
		Schedule:      cfg.Fetch.Schedule,
		SourceTimeout: cfg.Fetch.SourceTimeout,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(c.Schedule) == "" {
		c.Schedule = defaults.Schedule
	}
	if c.SourceTimeout <= 0 {
		c.SourceTimeout = defaults.SourceTimeout
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
