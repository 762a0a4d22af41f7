package schedule

import (
	"strings"
	"time"
)

// DefaultActivity is the current activity of a person nobody has scheduled yet.
const DefaultActivity = "Idle"

// Person is an organizer known by a stable external handle.
// Address is the chat to notify; 0 means the person never made contact.
type Person struct {
	ID        int64
	FirstName string
	LastName  string
	Handle    string
	Address   int64
	Activity  string
}

func (p Person) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// ScheduledEvent is one stored slot. (PersonID, Start) is the natural key.
type ScheduledEvent struct {
	ID       int64
	PersonID int64
	Action   string
	Start    time.Time
	End      time.Time
}

// Entry is one parsed feed cell: one time slot for one person.
type Entry struct {
	FirstName string
	LastName  string
	Handle    string
	Action    string
	Start     time.Time
	End       time.Time
}

// Slot is a stored event joined with its owner, as returned by schedule queries.
type Slot struct {
	Person Person
	Action string
	Start  time.Time
	End    time.Time
}

// NormalizeHandle trims spaces and a leading "@" and lower-cases the rest.
func NormalizeHandle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "@")
	return strings.ToLower(strings.TrimSpace(s))
}

// Window is a half-open time range [From, To). The zero Window is unbounded.
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) IsZero() bool { return w.From.IsZero() && w.To.IsZero() }

func (w Window) Contains(t time.Time) bool {
	if w.IsZero() {
		return true
	}
	return !t.Before(w.From) && t.Before(w.To)
}

// WindowOf spans entries from the earliest start to the latest end.
func WindowOf(entries []Entry) Window {
	var w Window
	for _, e := range entries {
		if w.From.IsZero() || e.Start.Before(w.From) {
			w.From = e.Start
		}
		if w.To.IsZero() || e.End.After(w.To) {
			w.To = e.End
		}
	}
	return w
}
