package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	logx "schedbot/pkg/logx"
)

// Mode selects how events are upserted during a cycle.
type Mode uint8

const (
	// Bootstrap inserts every entry; used when the event store is empty.
	Bootstrap Mode = iota + 1
	// SteadyState diffs entries against stored events by (person, start).
	SteadyState
)

func (m Mode) String() string {
	switch m {
	case Bootstrap:
		return "bootstrap"
	case SteadyState:
		return "steady_state"
	default:
		return "auto"
	}
}

type Config struct {
	// Lead and Tolerance define the activity-change window: a slot whose start
	// is within Lead±Tolerance from now is considered about to begin.
	Lead      time.Duration
	Tolerance time.Duration
	// InsertMissing inserts entries with no stored event in steady state
	// instead of dropping them.
	InsertMissing bool
}

func DefaultConfig() Config {
	return Config{Lead: 60 * time.Minute, Tolerance: 10 * time.Minute, InsertMissing: true}
}

// Report summarizes one reconciliation cycle.
type Report struct {
	Mode            Mode
	Entries         int
	PeopleCreated   int
	EventsCreated   int
	EventsUpdated   int
	ActivityChanges int
	Skipped         int
	Duplicates      int
	Notifications   int
}

var errDryRun = errors.New("dry run")

type Reconciler struct {
	tx  Transactor
	log logx.Logger
	now func() time.Time

	mu  sync.RWMutex
	cfg Config
}

type Option func(*Reconciler)

func WithLogger(log logx.Logger) Option { return func(r *Reconciler) { r.log = log } }

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(r *Reconciler) { r.now = now } }

func NewReconciler(tx Transactor, cfg Config, opts ...Option) *Reconciler {
	r := &Reconciler{tx: tx, cfg: normalizeConfig(cfg), now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

func normalizeConfig(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Lead <= 0 {
		cfg.Lead = def.Lead
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = def.Tolerance
	}
	return cfg
}

// SetConfig swaps the window and insert policy; the next cycle picks it up.
func (r *Reconciler) SetConfig(cfg Config) {
	r.mu.Lock()
	r.cfg = normalizeConfig(cfg)
	r.mu.Unlock()
}

func (r *Reconciler) Config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// DetectMode returns Bootstrap when the event store is empty.
func DetectMode(ctx context.Context, s EventStore) (Mode, error) {
	n, err := s.CountEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	if n == 0 {
		return Bootstrap, nil
	}
	return SteadyState, nil
}

// Reconcile folds entries into the stores in one transaction and returns the
// notifications it derived. Nothing is returned unless the transaction commits.
func (r *Reconciler) Reconcile(ctx context.Context, entries []Entry) (*Batch, Report, error) {
	return r.ReconcileMode(ctx, entries, 0)
}

// ReconcileMode is Reconcile with a forced mode. A zero mode is detected from the store.
func (r *Reconciler) ReconcileMode(ctx context.Context, entries []Entry, mode Mode) (*Batch, Report, error) {
	var (
		batch *Batch
		rep   Report
	)
	err := r.tx.InTx(ctx, func(s Store) error {
		var err error
		batch, rep, err = r.apply(ctx, s, entries, mode)
		return err
	})
	if err != nil {
		return nil, Report{}, err
	}
	return batch, rep, nil
}

// Preview runs a full cycle and rolls it back, returning what would have been sent.
func (r *Reconciler) Preview(ctx context.Context, entries []Entry) (*Batch, Report, error) {
	var (
		batch *Batch
		rep   Report
	)
	err := r.tx.InTx(ctx, func(s Store) error {
		var err error
		batch, rep, err = r.apply(ctx, s, entries, 0)
		if err != nil {
			return err
		}
		return errDryRun
	})
	if err != nil && !errors.Is(err, errDryRun) {
		return nil, Report{}, err
	}
	return batch, rep, nil
}

type slotKey struct {
	personID int64
	start    int64
}

func (r *Reconciler) apply(ctx context.Context, s Store, entries []Entry, mode Mode) (*Batch, Report, error) {
	cfg := r.Config()
	now := r.now()
	batch := NewBatch()
	rep := Report{Entries: len(entries)}

	if mode == 0 {
		m, err := DetectMode(ctx, s)
		if err != nil {
			return nil, rep, err
		}
		mode = m
	}
	rep.Mode = mode

	people, err := s.ListPeople(ctx)
	if err != nil {
		return nil, rep, fmt.Errorf("list people: %w", err)
	}
	byHandle := make(map[string]*Person, len(people))
	existed := make(map[int64]bool, len(people))
	for i := range people {
		p := people[i]
		byHandle[NormalizeHandle(p.Handle)] = &p
		existed[p.ID] = true
	}

	// A person with nothing stored inside the feed's span is seeing this feed day
	// for the first time: their slots are filed silently, like a bootstrap.
	window := WindowOf(entries)
	scheduled := make(map[int64]bool, len(people))
	if mode == SteadyState && !window.IsZero() {
		evs, err := s.ListEvents(ctx, window)
		if err != nil {
			return nil, rep, fmt.Errorf("list events in feed window: %w", err)
		}
		for _, ev := range evs {
			scheduled[ev.PersonID] = true
		}
	}

	seen := make(map[slotKey]struct{}, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, rep, err
		}
		handle := NormalizeHandle(e.Handle)
		if handle == "" {
			rep.Skipped++
			continue
		}

		p, ok := byHandle[handle]
		if !ok {
			np := Person{
				FirstName: e.FirstName,
				LastName:  e.LastName,
				Handle:    handle,
				Activity:  e.Action,
			}
			if err := s.CreatePerson(ctx, &np); err != nil {
				return nil, rep, fmt.Errorf("create person %q: %w", handle, err)
			}
			p = &np
			byHandle[handle] = p
			rep.PeopleCreated++
		}

		key := slotKey{personID: p.ID, start: e.Start.Unix()}
		if _, dup := seen[key]; dup {
			rep.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		if e.Action != p.Activity && inWindow(e.Start, now, cfg) {
			if err := s.UpdateActivity(ctx, p.ID, e.Action); err != nil {
				return nil, rep, fmt.Errorf("update activity %q: %w", handle, err)
			}
			p.Activity = e.Action
			rep.ActivityChanges++
			batch.Add(notificationFor(ActivityChange, p, e))
		}

		if mode == Bootstrap {
			if err := createEvent(ctx, s, p.ID, e); err != nil {
				return nil, rep, err
			}
			rep.EventsCreated++
			continue
		}

		ev, found, err := s.FindEvent(ctx, p.ID, e.Start)
		if err != nil {
			return nil, rep, fmt.Errorf("find event %q@%s: %w", handle, e.Start.Format(time.RFC3339), err)
		}
		switch {
		case found && ev.Action != e.Action:
			if err := s.UpdateAction(ctx, ev.ID, e.Action); err != nil {
				return nil, rep, fmt.Errorf("update event %d: %w", ev.ID, err)
			}
			rep.EventsUpdated++
			batch.Add(notificationFor(ScheduleUpdate, p, e))
		case !found && cfg.InsertMissing:
			if err := createEvent(ctx, s, p.ID, e); err != nil {
				return nil, rep, err
			}
			rep.EventsCreated++
			if existed[p.ID] && scheduled[p.ID] {
				batch.Add(notificationFor(ScheduleUpdate, p, e))
			}
		case !found:
			r.log.Debug("slot without stored event dropped",
				logx.String("handle", handle),
				logx.Time("start", e.Start),
			)
		}
	}

	if !window.IsZero() {
		if err := s.SetFeedWindow(ctx, window); err != nil {
			return nil, rep, fmt.Errorf("record feed window: %w", err)
		}
	}

	rep.Notifications = batch.Len()
	return batch, rep, nil
}

func createEvent(ctx context.Context, s EventStore, personID int64, e Entry) error {
	ev := ScheduledEvent{PersonID: personID, Action: e.Action, Start: e.Start, End: e.End}
	if err := s.CreateEvent(ctx, &ev); err != nil {
		return fmt.Errorf("create event person=%d start=%s: %w", personID, e.Start.Format(time.RFC3339), err)
	}
	return nil
}

func notificationFor(kind Kind, p *Person, e Entry) Notification {
	return Notification{
		Kind:     kind,
		PersonID: p.ID,
		Handle:   p.Handle,
		Address:  p.Address,
		Action:   e.Action,
		Start:    e.Start,
		End:      e.End,
	}
}

// inWindow reports whether start lies within cfg.Lead±cfg.Tolerance of now, bounds excluded.
func inWindow(start, now time.Time, cfg Config) bool {
	d := start.Sub(now) - cfg.Lead
	if d < 0 {
		d = -d
	}
	return d < cfg.Tolerance
}
