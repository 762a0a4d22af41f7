package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks the parts of cfg that can be checked without touching the network or disk.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(cfg.Storage.Path) == "" {
		add(errors.New("storage.path: required"))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Feed.Source)) {
	case "http":
		if strings.TrimSpace(cfg.Feed.URL) == "" && strings.TrimSpace(cfg.Feed.SpreadsheetID) == "" {
			add(errors.New("feed: http source needs url or spreadsheet_id"))
		}
	case "file":
		if strings.TrimSpace(cfg.Feed.Path) == "" {
			add(errors.New("feed.path: required for file source"))
		}
	default:
		add(fmt.Errorf("feed.source: unknown source %q", cfg.Feed.Source))
	}
	if d := strings.TrimSpace(cfg.Feed.Date); d != "" {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			add(fmt.Errorf("feed.date: %w", err))
		}
	}

	if tz := strings.TrimSpace(cfg.Sync.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("sync.timezone: %w", err))
		}
	}
	_, err := cfg.Durations()
	add(err)
	if cfg.Notifier.RatePerSec < 0 {
		add(errors.New("notifier.rate_per_sec: must be >= 0"))
	}
	if cfg.Logging.Ops.Enabled && cfg.Telegram.OpsChatID == 0 {
		add(errors.New("logging.ops: enabled but telegram.ops_chat_id is not set"))
	}
	return errors.Join(errs...)
}

// InsertMissingOrDefault resolves sync.insert_missing, which defaults to true.
func (s SyncConfig) InsertMissingOrDefault() bool {
	if s.InsertMissing == nil {
		return true
	}
	return *s.InsertMissing
}

// Location resolves sync.timezone, falling back to time.Local.
func (s SyncConfig) Location() *time.Location {
	tz := strings.TrimSpace(s.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}
