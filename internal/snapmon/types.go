package snapmon

import (
	"time"

	"github.com/hnrobert/macusers/internal/macusers"
)

// Sample is one point-in-time account inventory.
type Sample struct {
	Timestamp   time.Time         `json:"timestamp" yaml:"timestamp"`
	ConsoleUser string            `json:"console_user" yaml:"console_user"`
	Users       []macusers.Status `json:"users,omitempty" yaml:"users,omitempty"`
}

type Config struct {
	Enabled         bool `json:"enabled"`
	IntervalSeconds int  `json:"interval_seconds"`
	RetentionDays   int  `json:"retention_days"`

	// CollectFlags controls whether samples carry the full per-user flag
	// set (admin/ssh/filevault/secure-token/volume-owner). Flag queries
	// fan out into several subprocesses per user, so busy fleets can
	// record bare name lists instead.
	CollectFlags bool `json:"collect_flags"`
	// IncludeRoot admits the root account into samples.
	IncludeRoot bool `json:"include_root"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		IntervalSeconds: 900,
		RetentionDays:   30,
		CollectFlags:    true,
	}
}

func (c Config) IsZero() bool {
	return !c.Enabled &&
		c.IntervalSeconds == 0 &&
		c.RetentionDays == 0 &&
		!c.CollectFlags &&
		!c.IncludeRoot
}

func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = d.IntervalSeconds
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = d.RetentionDays
	}
	return c
}
