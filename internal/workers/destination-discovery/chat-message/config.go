package chatmessage

import (
	"fmt"
	"time"

	"destination-discovery/internal/common/config"
)

type Config struct {
	Enabled       bool
	MaxJobsActive int
	Timeout       time.Duration
	MaxRetries    int
}

// DefaultConfig leaves room for a full destination cycle, the longest a single
// turn runs, including gateway retries.
func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       3 * time.Minute,
		MaxRetries:    3,
	}
}

func createConfigFromAppConfig(appCfg *config.Config) *Config {
	cfg := DefaultConfig()
	if appCfg == nil {
		return cfg
	}
	cfg.Enabled = config.IsWorkerEnabled(appCfg, TaskType)
	if wc, ok := appCfg.Workers[TaskType]; ok {
		if wc.MaxJobsActive > 0 {
			cfg.MaxJobsActive = wc.MaxJobsActive
		}
		if wc.Timeout > 0 {
			cfg.Timeout = config.GetDuration(wc.Timeout)
		}
		if wc.MaxRetries > 0 {
			cfg.MaxRetries = wc.MaxRetries
		}
	}
	return cfg
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	return nil
}
