package snapmon

import (
	"context"
	"time"

	"github.com/hnrobert/macusers/internal/logger"
	"github.com/hnrobert/macusers/internal/macusers"
)

type Collector struct {
	dir *macusers.Directory
}

func NewCollector(dir *macusers.Directory) *Collector {
	return &Collector{dir: dir}
}

// Collect takes one account-inventory sample.
func (c *Collector) Collect(ctx context.Context, cfg Config) (Sample, error) {
	cfg = cfg.WithDefaults()
	s := Sample{Timestamp: time.Now().UTC()}

	console, err := c.dir.Console(ctx)
	if err != nil {
		return s, err
	}
	s.ConsoleUser = console

	opts := macusers.ListOptions{IncludeRoot: cfg.IncludeRoot}
	if cfg.CollectFlags {
		s.Users, err = c.dir.Report(ctx, opts)
		if err != nil {
			return s, err
		}
		return s, nil
	}

	names, err := c.dir.Users(ctx, opts)
	if err != nil {
		return s, err
	}
	for _, name := range names {
		s.Users = append(s.Users, macusers.Status{User: macusers.User{Username: name}})
	}
	return s, nil
}

// Run samples on the configured interval until ctx is cancelled. The
// config is re-read every tick so interval/flag changes apply without a
// restart; collection errors are logged and the loop keeps going.
func Run(ctx context.Context, c *Collector, store *Store, cfg func() Config) {
	for {
		current := cfg().WithDefaults()
		interval := time.Duration(current.IntervalSeconds) * time.Second

		if current.Enabled {
			sample, err := c.Collect(ctx, current)
			if err != nil {
				logger.Error("snapshot collection failed: %v", err)
			} else if err := store.Append(sample, current.RetentionDays); err != nil {
				logger.Error("snapshot append failed: %v", err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}
