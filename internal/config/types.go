package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Feed     FeedConfig     `json:"feed"`
	Sync     SyncConfig     `json:"sync"`
	Notifier NotifierConfig `json:"notifier"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	// OpsChatID receives warnings/errors when logging.ops.enabled is set.
	OpsChatID int64 `json:"ops_chat_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	Ops     LoggingOpsChat `json:"ops"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingOpsChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig points at the SQLite database holding people and schedule.
//
// Example:
//
//	"storage": { "path": "./data/schedbot.db", "busy_timeout": "2s" }
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// FeedConfig describes where the schedule spreadsheet comes from and how it is laid out.
//
// Source values:
//   - "http": CSV over HTTP; URL wins, otherwise a Google Sheets export URL
//     is built from SpreadsheetID and GID
//   - "file": local CSV file at Path
type FeedConfig struct {
	Source        string `json:"source"`
	URL           string `json:"url,omitempty"`
	SpreadsheetID string `json:"spreadsheet_id,omitempty"`
	GID           string `json:"gid,omitempty"`
	Path          string `json:"path,omitempty"`
	CacheDir      string `json:"cache_dir,omitempty"`
	Timeout       string `json:"timeout,omitempty"`

	// Date is the day of the first slot (YYYY-MM-DD). Empty means today.
	Date   string       `json:"date,omitempty"`
	Layout LayoutConfig `json:"layout"`
}

// LayoutConfig locates names, handles and slots in the grid. Indexes are zero-based.
// Zero values fall back to the defaults in feed.DefaultLayout.
type LayoutConfig struct {
	HeaderRow       *int   `json:"header_row,omitempty"`
	FirstPersonRow  *int   `json:"first_person_row,omitempty"`
	NameColumn      *int   `json:"name_column,omitempty"`
	HandleColumn    *int   `json:"handle_column,omitempty"`
	FirstSlotColumn *int   `json:"first_slot_column,omitempty"`
	LastSlotColumn  *int   `json:"last_slot_column,omitempty"`
	Placeholder     string `json:"placeholder,omitempty"`
	DayEnd          string `json:"day_end,omitempty"`
}

// SyncConfig controls the polling loop and the reconciliation policy.
type SyncConfig struct {
	Enabled bool `json:"enabled"`
	// Every accepts "60s", "01:00" (HH:MM interval) or a cron expression.
	Every        string `json:"every,omitempty"`
	Timezone     string `json:"timezone,omitempty"`
	CycleTimeout string `json:"cycle_timeout,omitempty"`

	// ActivityLead/ActivityTolerance define the activity-change window:
	// a slot starting within lead±tolerance from now triggers a heads-up.
	ActivityLead      string `json:"activity_lead,omitempty"`
	ActivityTolerance string `json:"activity_tolerance,omitempty"`

	// InsertMissing inserts slots that appear for a known person after
	// the first cycle. Defaults to true when omitted.
	InsertMissing *bool `json:"insert_missing,omitempty"`
}

// NotifierConfig paces outbound change messages.
type NotifierConfig struct {
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	Pace        string `json:"pace,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
}
