package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
telegram:
  token: "123:abc"
  owner_user_ids: [42]
logging:
  level: debug
  console: true
storage:
  path: ./data/schedbot.db
feed:
  source: http
  spreadsheet_id: sheet-1
  gid: "0"
  layout:
    first_slot_column: 6
    placeholder: Rest
sync:
  enabled: true
  every: 60s
  timezone: UTC
  insert_missing: false
notifier:
  rate_per_sec: 20
  pace: 200ms
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeFile(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	require.NoError(t, err)

	assert.Equal(t, []int64{42}, cfg.Telegram.OwnerUserIDs)
	assert.Equal(t, "sheet-1", cfg.Feed.SpreadsheetID)
	require.NotNil(t, cfg.Feed.Layout.FirstSlotColumn)
	assert.Equal(t, 6, *cfg.Feed.Layout.FirstSlotColumn)
	assert.Nil(t, cfg.Feed.Layout.LastSlotColumn)
	assert.False(t, cfg.Sync.InsertMissingOrDefault())
	assert.Same(t, cfg, m.Get())
	assert.NoError(t, Validate(cfg))
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeFile(t, "config.json", `{"storage":{"path":"x"},"pprof":{}}`))
	_, err := m.Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pprof")
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeFile(t, "config.json", `{"storage":{"path":"x"}}{}`))
	_, err := m.Parse()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Feed: FeedConfig{Source: "file", Date: "15-10-2026"},
		Sync: SyncConfig{Timezone: "Mars/Olympus", ActivityLead: "soon"},
	}
	err := Validate(cfg)
	require.Error(t, err)
	for _, want := range []string{"storage.path", "feed.path", "feed.date", "sync.timezone", "sync.activity_lead"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestInsertMissingDefaultsToTrue(t *testing.T) {
	t.Parallel()
	assert.True(t, SyncConfig{}.InsertMissingOrDefault())
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Telegram: TelegramConfig{Token: "secret"}, Sync: SyncConfig{Every: "60s"}}
	newCfg := &Config{Telegram: TelegramConfig{Token: "secret"}, Sync: SyncConfig{Every: "30s"}, Notifier: NotifierConfig{Pace: "1s"}}

	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	assert.Equal(t, []string{"sync", "notifier"}, changed)
	assert.NotEmpty(t, attrs)
	assert.Empty(t, RequiresRestart(oldCfg, newCfg))

	newCfg.Storage.Path = "other.db"
	newCfg.Telegram.OwnerUserIDs = []int64{7}
	changed, _ = SummarizeConfigChange(oldCfg, newCfg)
	assert.Equal(t, []string{"telegram", "storage", "sync", "notifier"}, changed)
	assert.Equal(t, []string{"storage"}, RequiresRestart(oldCfg, newCfg))

	newCfg.Telegram.Token = "rotated"
	assert.Equal(t, []string{"telegram.token", "storage"}, RequiresRestart(oldCfg, newCfg))
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 5)
	require.NoError(t, err)
	assert.EqualValues(t, 5, d)

	_, err = ParseDurationField("x", "-1s")
	assert.Error(t, err)
}

func TestDurationsDefaults(t *testing.T) {
	t.Parallel()
	d, err := (&Config{Sync: SyncConfig{ActivityLead: "45m"}}).Durations()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, d.ActivityLead)
	assert.Equal(t, 10*time.Minute, d.ActivityTolerance)
	assert.Equal(t, 200*time.Millisecond, d.Pace)
	assert.Zero(t, d.CycleTimeout)

	_, err = (&Config{Notifier: NotifierConfig{Pace: "fast"}, Storage: StorageConfig{BusyTimeout: "-2s"}}).Durations()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notifier.pace")
	assert.Contains(t, err.Error(), "storage.busy_timeout")
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeFile(t, "config.yaml", "feed:\n  source: ftp\n"))
	_, err := m.Load()
	require.Error(t, err)
	assert.Nil(t, m.Get())
}

func TestEmptyYAMLParses(t *testing.T) {
	t.Parallel()
	cfg, err := decode("config.yml", []byte("# nothing yet\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Storage.Path)
}

func TestTokenFromEnv(t *testing.T) {
	t.Setenv(EnvToken, "999:env")
	cfg, err := decode("config.json", []byte(`{"storage":{"path":"x"}}`))
	require.NoError(t, err)
	assert.Equal(t, "999:env", cfg.Telegram.Token)

	cfg, err = decode("config.json", []byte(`{"telegram":{"token":"1:file"}}`))
	require.NoError(t, err)
	assert.Equal(t, "1:file", cfg.Telegram.Token)
}

func TestReloadPublishesOnlyChanges(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", sampleYAML)
	m := NewConfigManager(path)
	first, err := m.Load()
	require.NoError(t, err)
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ok, err := m.Reload(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "same content must not publish")

	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(sampleYAML, "level: debug", "level: info", 1)), 0o600))
	ok, err = m.Reload(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	got := <-sub
	assert.Equal(t, "info", got.Logging.Level)
	assert.Same(t, got, m.Get())
	assert.NotSame(t, first, got)
}

func TestReloadKeepsConfigOnRejection(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", sampleYAML)
	m := NewConfigManager(path)
	cur, err := m.Load()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("feed:\n  source: ftp\nstorage:\n  path: x\n"), 0o600))
	_, err = m.Reload(context.Background())
	require.Error(t, err)
	assert.Same(t, cur, m.Get())

	m.SetValidator(func(context.Context, *Config) error { return errors.New("no") })
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(sampleYAML, "pace: 200ms", "pace: 1s", 1)), 0o600))
	_, err = m.Reload(context.Background())
	require.EqualError(t, err, "no")
	assert.Same(t, cur, m.Get())
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("unused.yaml")
	ch := m.Subscribe(1)
	m.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)
	m.Unsubscribe(ch)
}
