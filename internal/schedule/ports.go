package schedule

import (
	"context"
	"time"
)

// PersonStore is the directory capability. Finders return ok=false, not an error, on a miss.
type PersonStore interface {
	FindByHandle(ctx context.Context, handle string) (Person, bool, error)
	FindByID(ctx context.Context, id int64) (Person, bool, error)
	FindByName(ctx context.Context, firstName, lastName string) (Person, bool, error)
	FindBySurname(ctx context.Context, lastName string) (Person, bool, error)
	FindByAddress(ctx context.Context, address int64) (Person, bool, error)
	ListPeople(ctx context.Context) ([]Person, error)

	// CreatePerson inserts p and sets p.ID.
	CreatePerson(ctx context.Context, p *Person) error
	UpdateActivity(ctx context.Context, personID int64, activity string) error
	// UpdateAddress binds address to the person with handle. It reports false when no such person exists.
	UpdateAddress(ctx context.Context, handle string, address int64) (bool, error)
}

// EventStore is the schedule capability.
type EventStore interface {
	FindEvent(ctx context.Context, personID int64, start time.Time) (ScheduledEvent, bool, error)
	// CreateEvent inserts ev and sets ev.ID.
	CreateEvent(ctx context.Context, ev *ScheduledEvent) error
	UpdateAction(ctx context.Context, eventID int64, action string) error
	// ListEvents returns the events starting inside w ordered by start, then person.
	// A zero w selects every event.
	ListEvents(ctx context.Context, w Window) ([]ScheduledEvent, error)
	ListEventsForPerson(ctx context.Context, personID int64, w Window) ([]ScheduledEvent, error)
	CountEvents(ctx context.Context) (int, error)

	// SetFeedWindow records the span of the last reconciled feed.
	SetFeedWindow(ctx context.Context, w Window) error
	// FeedWindow reports ok=false before the first cycle.
	FeedWindow(ctx context.Context) (w Window, ok bool, err error)
}

type Store interface {
	PersonStore
	EventStore
}

// Transactor runs fn against a Store bound to one transaction.
// A non-nil error from fn rolls the transaction back.
type Transactor interface {
	InTx(ctx context.Context, fn func(Store) error) error
}
