package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "schedbot/pkg/logx"
)

const (
	reloadDebounce  = 250 * time.Millisecond
	validateTimeout = 5 * time.Second
)

// ErrWatcherClosed is returned by Watch when fsnotify stops delivering events.
// Callers run Watch under a restarting supervisor.
var ErrWatcherClosed = errors.New("config watcher closed")

// Watch reloads the config when its file changes, until ctx is done.
// The parent directory is watched so editors that replace the file are seen.
func (m *ConfigManager) Watch(ctx context.Context) error {
	dir, file := filepath.Dir(m.path), filepath.Base(m.path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("config watch %s: %w", dir, err)
	}
	m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

	// one timer, reset on every event, so a burst of writes reloads once
	timer := time.NewTimer(reloadDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return ErrWatcherClosed
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) {
				timer.Reset(reloadDebounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return ErrWatcherClosed
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				m.log.Warn("config watch overflow; forcing reload", logx.Err(err))
				timer.Reset(reloadDebounce)
				continue
			}
			m.log.Warn("config watch error", logx.Err(err), logx.String("dir", dir))
		case <-timer.C:
			m.reload(ctx)
		}
	}
}

func (m *ConfigManager) reload(ctx context.Context) {
	ok, err := m.Reload(ctx)
	switch {
	case err != nil:
		m.log.Warn("config rejected", logx.String("path", m.path), logx.Err(err))
	case ok:
		m.log.Debug("config published", logx.String("path", m.path))
	default:
		m.log.Debug("config unchanged; skipping publish", logx.String("path", m.path))
	}
}
