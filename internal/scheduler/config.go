package scheduler

import (
	"time"

	"github.com/smallbiznis/practicebooks/internal/config"
)

// Config controls the sweep cadence and paging.
type Config struct {
	RunInterval  time.Duration
	JobTimeout   time.Duration
	OrgBatchSize int
}

func DefaultConfig() Config {
	return Config{
		RunInterval:  time.Hour,
		JobTimeout:   5 * time.Minute,
		OrgBatchSize: 100,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.OrgBatchSize <= 0 {
		c.OrgBatchSize = defaults.OrgBatchSize
	}
	return c
}

func ProvideConfig(cfg config.Config, billing *config.BillingConfigHolder) Config {
	return Config{
		RunInterval:  cfg.Scheduler.RunInterval,
		JobTimeout:   cfg.Scheduler.JobTimeout,
		OrgBatchSize: billing.Get().SweepOrgBatchSize,
	}.withDefaults()
}
