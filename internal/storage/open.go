package storage

import (
	"errors"
	"strings"

	logx "schedbot/pkg/logx"
)

// Open initializes the SQLite store and applies migrations.
func Open(cfg Config, log logx.Logger) (*SQLite, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage: sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return openSQLite(cfg, log)
}
