package syncer

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"schedbot/internal/eventbus"
	"schedbot/internal/feed"
	"schedbot/internal/notifier"
	"schedbot/internal/schedule"
	logx "schedbot/pkg/logx"
)

const DefaultEvery = 60 * time.Second

// ErrBusy is returned by RunOnce while another cycle is in flight.
var ErrBusy = errors.New("sync cycle already running")

// State is the polling loop position.
type State uint32

const (
	StateIdle State = iota
	StateFetching
	StateReconciling
	StateNotifying
	StateSleeping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateReconciling:
		return "reconciling"
	case StateNotifying:
		return "notifying"
	case StateSleeping:
		return "sleeping"
	default:
		return "unknown"
	}
}

type EntrySource interface {
	Entries(ctx context.Context) (feed.Result, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, entries []schedule.Entry) (*schedule.Batch, schedule.Report, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, batch *schedule.Batch) (notifier.Stats, error)
}

type Config struct {
	Enabled bool
	Every   string
	// Location drives cron expressions. Nil means time.Local.
	Location *time.Location
	// CycleTimeout bounds one cycle. 0 disables the bound.
	CycleTimeout time.Duration
}

// CycleReport describes one finished (or failed) cycle.
type CycleReport struct {
	ID          string          `json:"id"`
	StartedAt   time.Time       `json:"started_at"`
	Took        time.Duration   `json:"took"`
	Entries     int             `json:"entries"`
	SkippedRows int             `json:"skipped_rows"`
	Reconcile   schedule.Report `json:"reconcile"`
	Delivery    notifier.Stats  `json:"delivery"`
	FailedIn    string          `json:"failed_in,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Snapshot is the /status view of the loop.
type Snapshot struct {
	Enabled   bool
	Spec      string
	State     State
	Next      time.Time
	Cycles    uint64
	Failures  uint64
	Overlaps  uint64
	Last      *CycleReport
	LastError string
	LastErrAt time.Time
}

// Service drives fetch -> reconcile -> notify on a cron trigger.
// Cycles never overlap: a tick that arrives mid-cycle is skipped.
type Service struct {
	src EntrySource
	rec Reconciler
	out Deliverer
	log logx.Logger
	bus eventbus.Bus

	parser cron.Parser

	// mu guards the cron lifecycle; cycles never take it.
	mu      sync.Mutex
	spec    ParsedSpec
	c       *cron.Cron
	entryID cron.EntryID

	cmu    sync.RWMutex
	cfg    Config
	runCtx context.Context

	running atomic.Bool
	state   atomic.Uint32

	cycles   atomic.Uint64
	failures atomic.Uint64
	overlaps atomic.Uint64

	smu       sync.Mutex
	last      *CycleReport
	lastErr   string
	lastErrAt time.Time

	onCycle func(CycleReport)
}

func New(cfg Config, src EntrySource, rec Reconciler, out Deliverer, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		src:    src,
		rec:    rec,
		out:    out,
		log:    log,
		bus:    eventbus.OrNop(bus),
		cfg:    cfg,
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// OnCycle registers a hook called after every cycle, success or not.
// Set it before Start.
func (s *Service) OnCycle(fn func(CycleReport)) { s.onCycle = fn }

// Validate parses the sync.every value the way Start would.
func (s *Service) Validate(cfg Config) error {
	p, err := ParseSpec(cfg.Every)
	if err != nil {
		return err
	}
	if _, err := s.parser.Parse(p.CronSpec()); err != nil {
		return fmt.Errorf("sync.every: %w", err)
	}
	return nil
}

// Start schedules the loop and kicks off the first cycle right away.
// The cycles run under ctx until Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.cmu.Lock()
	s.runCtx = ctx
	enabled := s.cfg.Enabled
	s.cmu.Unlock()
	if !enabled {
		s.log.Info("sync disabled")
		return nil
	}
	if err := s.startLocked(); err != nil {
		return err
	}
	go s.tick()
	return nil
}

func (s *Service) startLocked() error {
	s.cmu.RLock()
	cfg := s.cfg
	s.cmu.RUnlock()

	spec, err := ParseSpec(cfg.Every)
	if err != nil {
		return err
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{log: s.log}),
	)
	id, err := c.AddFunc(spec.CronSpec(), s.tick)
	if err != nil {
		return fmt.Errorf("sync.every %q: %w", cfg.Every, err)
	}
	s.c, s.entryID, s.spec = c, id, spec
	c.Start()
	s.state.Store(uint32(StateSleeping))
	s.log.Info("sync started", logx.String("spec", spec.String()), logx.String("tz", loc.String()))
	return nil
}

// Stop halts triggering and waits for an in-flight cycle or ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.state.Store(uint32(StateIdle))
	s.log.Info("sync stopped")
}

// Apply swaps the config and reschedules when the trigger changed.
func (s *Service) Apply(cfg Config) error {
	if cfg.Enabled {
		if err := s.Validate(cfg); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmu.Lock()
	old := s.cfg
	s.cfg = cfg
	started := s.runCtx != nil
	s.cmu.Unlock()
	if !started {
		return nil
	}
	triggerChanged := old.Enabled != cfg.Enabled ||
		strings.TrimSpace(old.Every) != strings.TrimSpace(cfg.Every) ||
		old.Location.String() != cfg.Location.String()
	if !triggerChanged {
		return nil
	}
	if s.c != nil {
		<-s.c.Stop().Done()
		s.c = nil
	}
	if !cfg.Enabled {
		s.state.Store(uint32(StateIdle))
		s.log.Info("sync disabled by config")
		return nil
	}
	return s.startLocked()
}

func (s *Service) tick() {
	s.cmu.RLock()
	ctx := s.runCtx
	s.cmu.RUnlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if _, err := s.RunOnce(ctx); errors.Is(err, ErrBusy) {
		s.log.Debug("tick skipped; cycle in flight")
	}
}

// RunOnce runs one full cycle. Errors and panics are contained: they are
// logged, recorded in the snapshot and returned, and the loop goes back to sleep.
func (s *Service) RunOnce(ctx context.Context) (rep CycleReport, err error) {
	if !s.running.CompareAndSwap(false, true) {
		s.overlaps.Add(1)
		s.bus.Publish(eventbus.Event{Type: eventbus.TopicCycleSkipped})
		return CycleReport{}, ErrBusy
	}
	defer s.running.Store(false)

	s.cmu.RLock()
	timeout := s.cfg.CycleTimeout
	s.cmu.RUnlock()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	rep = CycleReport{ID: uuid.NewString(), StartedAt: time.Now()}
	log := s.log.With(logx.String("cycle", rep.ID))
	s.bus.Publish(eventbus.Event{Type: eventbus.TopicCycleStarted, Data: rep.ID})

	defer func() {
		if r := recover(); r != nil {
			log.Error("sync cycle panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic in %s: %v", State(s.state.Load()), r)
			rep.FailedIn = State(s.state.Load()).String()
		}
		rep.Took = time.Since(rep.StartedAt)
		s.state.Store(uint32(StateSleeping))
		s.finish(log, rep, err)
	}()

	s.state.Store(uint32(StateFetching))
	res, err := s.src.Entries(ctx)
	if err != nil {
		rep.FailedIn = StateFetching.String()
		return rep, fmt.Errorf("fetch: %w", err)
	}
	rep.Entries = len(res.Entries)
	rep.SkippedRows = len(res.Skipped)

	s.state.Store(uint32(StateReconciling))
	batch, rr, err := s.rec.Reconcile(ctx, res.Entries)
	if err != nil {
		rep.FailedIn = StateReconciling.String()
		return rep, fmt.Errorf("reconcile: %w", err)
	}
	rep.Reconcile = rr

	s.state.Store(uint32(StateNotifying))
	st, err := s.out.Deliver(ctx, batch)
	rep.Delivery = st
	if err != nil {
		rep.FailedIn = StateNotifying.String()
		return rep, fmt.Errorf("deliver: %w", err)
	}
	return rep, nil
}

func (s *Service) finish(log logx.Logger, rep CycleReport, err error) {
	s.cycles.Add(1)
	if err != nil {
		rep.Error = err.Error()
		s.failures.Add(1)
		log.Warn("sync cycle failed", logx.String("stage", rep.FailedIn), logx.Duration("took", rep.Took), logx.Err(err))
		s.bus.Publish(eventbus.Event{Type: eventbus.TopicCycleFailed, Data: rep})
	} else {
		fields := []logx.Field{
			logx.String("mode", rep.Reconcile.Mode.String()),
			logx.Int("entries", rep.Entries),
			logx.Int("people_created", rep.Reconcile.PeopleCreated),
			logx.Int("events_created", rep.Reconcile.EventsCreated),
			logx.Int("events_updated", rep.Reconcile.EventsUpdated),
			logx.Int("sent", rep.Delivery.Sent),
			logx.Duration("took", rep.Took),
		}
		if rep.Reconcile.Notifications > 0 || rep.Reconcile.PeopleCreated > 0 {
			log.Info("sync cycle done", fields...)
		} else {
			log.Debug("sync cycle done", fields...)
		}
		s.bus.Publish(eventbus.Event{Type: eventbus.TopicCycleFinished, Data: rep})
	}

	s.smu.Lock()
	s.last = &rep
	if err != nil {
		s.lastErr = rep.Error
		s.lastErrAt = time.Now()
	}
	s.smu.Unlock()

	if s.onCycle != nil {
		s.onCycle(rep)
	}
}

func (s *Service) State() State { return State(s.state.Load()) }

func (s *Service) Snapshot() Snapshot {
	s.cmu.RLock()
	snap := Snapshot{Enabled: s.cfg.Enabled}
	s.cmu.RUnlock()

	s.mu.Lock()
	snap.Spec = s.spec.String()
	if s.c != nil && s.entryID != 0 {
		snap.Next = s.c.Entry(s.entryID).Next
	}
	s.mu.Unlock()

	snap.State = s.State()
	snap.Cycles = s.cycles.Load()
	snap.Failures = s.failures.Load()
	snap.Overlaps = s.overlaps.Load()

	s.smu.Lock()
	if s.last != nil {
		cp := *s.last
		snap.Last = &cp
	}
	snap.LastError = s.lastErr
	snap.LastErrAt = s.lastErrAt
	s.smu.Unlock()
	return snap
}

// cronLogger routes robfig/cron's internal logging through logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
