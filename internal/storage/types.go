package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures the SQLite store.
// Path ":memory:" opens a private in-memory database.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
	// Location is applied to timestamps read back from the store. Nil means time.Local.
	Location *time.Location
}
