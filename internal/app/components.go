package app

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"schedbot/internal/config"
	"schedbot/internal/eventbus"
	"schedbot/internal/feed"
	"schedbot/internal/notifier"
	"schedbot/internal/schedule"
	"schedbot/internal/storage"
	"schedbot/internal/syncer"
	kit "schedbot/internal/transport"
	logx "schedbot/pkg/logx"
)

// Core is the schedule pipeline without the bot surface:
// store, feed, reconciler, notifier and the polling loop.
type Core struct {
	Store      *storage.SQLite
	Directory  *schedule.Directory
	Reconciler *schedule.Reconciler
	Notifier   *notifier.Service
	Syncer     *syncer.Service

	feed *feedSwitch
	log  logx.Logger
}

// NewCore opens the store and wires the pipeline. sender may be nil when
// nothing is delivered (dry runs, read-only commands).
func NewCore(cfg *config.Config, log logx.Logger, bus eventbus.Bus, sender kit.Sender) (*Core, error) {
	d, err := cfg.Durations()
	if err != nil {
		return nil, err
	}
	fd, err := mapFeed(cfg, d, log.With(logx.String("comp", "feed")))
	if err != nil {
		return nil, err
	}

	st, err := storage.Open(mapStorageConfig(cfg, d), log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	c := &Core{
		Store:     st,
		Directory: schedule.NewDirectory(st),
		feed:      &feedSwitch{},
		log:       log,
	}
	c.feed.cur.Store(fd)
	c.Reconciler = schedule.NewReconciler(st, mapReconcilerConfig(cfg, d),
		schedule.WithLogger(log.With(logx.String("comp", "reconcile"))))
	c.Notifier = notifier.New(mapNotifierConfig(cfg, d), sender, log.With(logx.String("comp", "notifier")), bus)
	c.Syncer = syncer.New(mapSyncConfig(cfg, d), c.feed, c.Reconciler, c.Notifier, log.With(logx.String("comp", "sync")), bus)
	if err := c.Syncer.Validate(mapSyncConfig(cfg, d)); err != nil {
		_ = st.Close()
		return nil, err
	}
	return c, nil
}

// Entries reads one cycle of entries from the current feed.
func (c *Core) Entries(ctx context.Context) (feed.Result, error) {
	return c.feed.Entries(ctx)
}

// Validate rejects configs the running pipeline could not apply.
func (c *Core) Validate(cfg *config.Config) error {
	d, err := cfg.Durations()
	if err != nil {
		return err
	}
	if _, err := mapFeed(cfg, d, logx.Nop()); err != nil {
		return err
	}
	return c.Syncer.Validate(mapSyncConfig(cfg, d))
}

// Apply pushes the hot-reloadable parts of cfg into the running pipeline.
// Storage changes need a restart.
func (c *Core) Apply(cfg *config.Config) error {
	d, err := cfg.Durations()
	if err != nil {
		return err
	}
	fd, err := mapFeed(cfg, d, c.log.With(logx.String("comp", "feed")))
	if err != nil {
		return err
	}
	if err := c.Syncer.Apply(mapSyncConfig(cfg, d)); err != nil {
		return err
	}
	c.feed.cur.Store(fd)
	c.Reconciler.SetConfig(mapReconcilerConfig(cfg, d))
	c.Notifier.Apply(mapNotifierConfig(cfg, d))
	return nil
}

func (c *Core) Close() error {
	return c.Store.Close()
}

// feedSwitch lets a config reload replace the feed between cycles.
type feedSwitch struct {
	cur atomic.Pointer[feed.Feed]
}

func (s *feedSwitch) Entries(ctx context.Context) (feed.Result, error) {
	return s.cur.Load().Entries(ctx)
}

func mapStorageConfig(cfg *config.Config, d config.Durations) storage.Config {
	return storage.Config{
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: d.BusyTimeout,
		Location:    cfg.Sync.Location(),
	}
}

func mapLayout(lc config.LayoutConfig) feed.Layout {
	l := feed.DefaultLayout()
	set := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	set(&l.HeaderRow, lc.HeaderRow)
	set(&l.FirstPersonRow, lc.FirstPersonRow)
	set(&l.NameColumn, lc.NameColumn)
	set(&l.HandleColumn, lc.HandleColumn)
	set(&l.FirstSlotColumn, lc.FirstSlotColumn)
	set(&l.LastSlotColumn, lc.LastSlotColumn)
	if p := strings.TrimSpace(lc.Placeholder); p != "" {
		l.Placeholder = p
	}
	if e := strings.TrimSpace(lc.DayEnd); e != "" {
		l.DayEnd = e
	}
	return l
}

func mapFeed(cfg *config.Config, d config.Durations, log logx.Logger) (*feed.Feed, error) {
	fc := cfg.Feed
	var src feed.Source
	switch strings.ToLower(strings.TrimSpace(fc.Source)) {
	case "http":
		url := strings.TrimSpace(fc.URL)
		if url == "" {
			url = feed.SheetsExportURL(strings.TrimSpace(fc.SpreadsheetID), strings.TrimSpace(fc.GID))
		}
		src = feed.NewHTTPSource(url, strings.TrimSpace(fc.CacheDir), d.FeedTimeout, log)
	case "file":
		src = feed.FileSource{Path: strings.TrimSpace(fc.Path)}
	default:
		return nil, fmt.Errorf("feed.source: unknown source %q", fc.Source)
	}
	f := feed.New(src, mapLayout(fc.Layout), cfg.Sync.Location(),
		feed.WithLogger(log),
		feed.WithDate(fc.Date),
	)
	if _, err := f.Day(); err != nil {
		return nil, err
	}
	return f, nil
}

func mapReconcilerConfig(cfg *config.Config, d config.Durations) schedule.Config {
	return schedule.Config{
		Lead:          d.ActivityLead,
		Tolerance:     d.ActivityTolerance,
		InsertMissing: cfg.Sync.InsertMissingOrDefault(),
	}
}

func mapNotifierConfig(cfg *config.Config, d config.Durations) notifier.Config {
	return notifier.Config{
		RatePerSec:  cfg.Notifier.RatePerSec,
		Pace:        d.Pace,
		SendTimeout: d.SendTimeout,
	}
}

func mapSyncConfig(cfg *config.Config, d config.Durations) syncer.Config {
	return syncer.Config{
		Enabled:      cfg.Sync.Enabled,
		Every:        cfg.Sync.Every,
		Location:     cfg.Sync.Location(),
		CycleTimeout: d.CycleTimeout,
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Ops: logx.OpsConfig{
			Enabled:    lc.Ops.Enabled,
			ChatID:     cfg.Telegram.OpsChatID,
			MinLevel:   lc.Ops.MinLevel,
			RatePerSec: lc.Ops.RatePerSec,
		},
	}
}
