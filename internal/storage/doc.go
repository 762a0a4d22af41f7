// Package storage persists people and their schedule in SQLite.
//
// Tables:
//   - people: one row per organizer, unique handle, optional unique address
//   - schedule: one row per slot, unique (person_id, start_at)
//
// Timestamps are stored as unix seconds and read back in the configured location.
package storage
