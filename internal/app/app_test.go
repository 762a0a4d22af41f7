package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedbot/internal/config"
	"schedbot/internal/syncer"
	logx "schedbot/pkg/logx"
)

func intp(v int) *int { return &v }

func TestMapLayoutOverridesOnlySetFields(t *testing.T) {
	t.Parallel()
	l := mapLayout(config.LayoutConfig{
		FirstSlotColumn: intp(2),
		LastSlotColumn:  intp(3),
		Placeholder:     " Break ",
	})
	assert.Equal(t, 2, l.FirstSlotColumn)
	assert.Equal(t, 3, l.LastSlotColumn)
	assert.Equal(t, "Break", l.Placeholder)
	assert.Equal(t, 1, l.FirstPersonRow)
	assert.Equal(t, 1, l.HandleColumn)
	assert.Equal(t, "00:00", l.DayEnd)
}

func TestMapLayoutZeroIsExplicit(t *testing.T) {
	t.Parallel()
	l := mapLayout(config.LayoutConfig{FirstPersonRow: intp(0)})
	assert.Equal(t, 0, l.FirstPersonRow)
}

func TestMapFeedRejectsUnknownSource(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Feed: config.FeedConfig{Source: "ftp"}}
	_, err := mapFeed(cfg, config.Durations{}, logx.Nop())
	assert.Error(t, err)
}

func TestMapFeedRejectsBadDate(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Feed: config.FeedConfig{Source: "file", Path: "x.csv", Date: "15/10/2026"}}
	_, err := mapFeed(cfg, config.Durations{}, logx.Nop())
	assert.Error(t, err)
}

func TestMapLogConfigTakesOpsChatFromTelegram(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Telegram: config.TelegramConfig{OpsChatID: -100},
		Logging: config.LoggingConfig{
			Level: "debug",
			Ops:   config.LoggingOpsChat{Enabled: true, MinLevel: "warn", RatePerSec: 2},
		},
	}
	lc := mapLogConfig(cfg)
	assert.Equal(t, int64(-100), lc.Ops.ChatID)
	assert.True(t, lc.Ops.Enabled)
	assert.Equal(t, "warn", lc.Ops.MinLevel)
	assert.Equal(t, 2, lc.Ops.RatePerSec)
}

const sheetA = "Name,Handle,10:00,10:30\nIvanov Ivan,@ivan,Desk,Hall\n"
const sheetB = "Name,Handle,10:00,10:30\nIvanov Ivan,@ivan,Desk,Hall\nPetrova Anna,anna,Desk,\n"

func testConfig(t *testing.T, sheet string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sheet.csv")
	require.NoError(t, os.WriteFile(path, []byte(sheet), 0o644))
	return &config.Config{
		Storage: config.StorageConfig{Path: filepath.Join(dir, "schedbot.db")},
		Feed: config.FeedConfig{
			Source: "file",
			Path:   path,
			Date:   "2026-10-15",
			Layout: config.LayoutConfig{
				FirstSlotColumn: intp(2),
				LastSlotColumn:  intp(3),
				DayEnd:          "11:00",
			},
		},
		Sync: config.SyncConfig{Every: "60s"},
	}
}

func TestCoreEntriesFollowFeedSwap(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t, sheetA)
	core, err := NewCore(cfg, logx.Nop(), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close() })

	res, err := core.Entries(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Entries, 2)

	next := testConfig(t, sheetB)
	next.Storage = cfg.Storage
	require.NoError(t, core.Apply(next))

	res, err = core.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Entries, 4)
	assert.Equal(t, "Rest", res.Entries[3].Action)
}

func TestCoreValidate(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t, sheetA)
	core, err := NewCore(cfg, logx.Nop(), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close() })

	bad := *cfg
	bad.Sync.Every = "cron:"
	assert.Error(t, core.Validate(&bad))

	bad = *cfg
	bad.Feed.Source = "gopher"
	assert.Error(t, core.Validate(&bad))

	assert.NoError(t, core.Validate(cfg))
}

type fakeNotifier struct {
	status    []string
	watchdogs int
}

func (f *fakeNotifier) Ready()          {}
func (f *fakeNotifier) Stopping()       {}
func (f *fakeNotifier) Status(s string) { f.status = append(f.status, s) }
func (f *fakeNotifier) Watchdog()       { f.watchdogs++ }

func TestCycleDoneReportsStatus(t *testing.T) {
	t.Parallel()
	n := &fakeNotifier{}
	a := &App{notify: n}

	rep := syncer.CycleReport{ID: "ab12", Entries: 4}
	rep.Delivery.Sent = 2
	a.cycleDone(rep)
	a.cycleDone(syncer.CycleReport{ID: "cd34", FailedIn: "fetch", Error: "timeout"})

	require.Len(t, n.status, 2)
	assert.Equal(t, "last cycle ab12: 4 entries, 2 sent", n.status[0])
	assert.Equal(t, "last cycle cd34 failed in fetch", n.status[1])
	assert.Equal(t, 2, n.watchdogs)
}
