package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Durations holds every duration field of Config, parsed, with defaults applied.
// CycleTimeout stays zero (no bound) unless configured.
type Durations struct {
	PollTimeout       time.Duration
	BusyTimeout       time.Duration
	FeedTimeout       time.Duration
	CycleTimeout      time.Duration
	ActivityLead      time.Duration
	ActivityTolerance time.Duration
	Pace              time.Duration
	SendTimeout       time.Duration
}

func (c *Config) Durations() (Durations, error) {
	var (
		d    Durations
		errs []error
	)
	fields := []struct {
		dst  *time.Duration
		path string
		raw  string
		def  time.Duration
	}{
		{&d.PollTimeout, "telegram.poll_timeout", c.Telegram.PollTimeout, 10 * time.Second},
		{&d.BusyTimeout, "storage.busy_timeout", c.Storage.BusyTimeout, 5 * time.Second},
		{&d.FeedTimeout, "feed.timeout", c.Feed.Timeout, 30 * time.Second},
		{&d.CycleTimeout, "sync.cycle_timeout", c.Sync.CycleTimeout, 0},
		{&d.ActivityLead, "sync.activity_lead", c.Sync.ActivityLead, 60 * time.Minute},
		{&d.ActivityTolerance, "sync.activity_tolerance", c.Sync.ActivityTolerance, 10 * time.Minute},
		{&d.Pace, "notifier.pace", c.Notifier.Pace, 200 * time.Millisecond},
		{&d.SendTimeout, "notifier.send_timeout", c.Notifier.SendTimeout, 10 * time.Second},
	}
	for _, f := range fields {
		v, err := ParseDurationOrDefault(f.path, f.raw, f.def)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*f.dst = v
	}
	return d, errors.Join(errs...)
}
