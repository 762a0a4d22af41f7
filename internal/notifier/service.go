package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"schedbot/internal/eventbus"
	"schedbot/internal/schedule"
	kit "schedbot/internal/transport"
	logx "schedbot/pkg/logx"

	"golang.org/x/time/rate"
)

var ErrNoSender = errors.New("notifier: no sender")

const scheduleChangedHeader = "Schedule changed:"

// Service sends NotificationBatches through a kit.Sender. It is safe for concurrent use,
// though the polling loop is its only caller.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	log    logx.Logger
	sender kit.Sender
	bus    eventbus.Bus

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender kit.Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{log: log, sender: sender, bus: eventbus.OrNop(bus)}
	s.Apply(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.Pace < 0 {
		cfg.Pace = 0
	}
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

// Message is one outbound chat message.
type Message struct {
	Kind schedule.Kind
	Text string
}

// Compose renders the messages for one address: each activity change alone,
// then every schedule update joined under one header.
func Compose(ns []schedule.Notification) []Message {
	var (
		out     []Message
		updates []string
	)
	for _, n := range ns {
		switch n.Kind {
		case schedule.ActivityChange:
			out = append(out, Message{Kind: n.Kind, Text: n.Line()})
		case schedule.ScheduleUpdate:
			updates = append(updates, n.Line())
		}
	}
	if len(updates) > 0 {
		out = append(out, Message{Kind: schedule.ScheduleUpdate, Text: scheduleChangedHeader + "\n" + strings.Join(updates, "\n")})
	}
	return out
}

// Deliver sends the batch and blocks until done or ctx ends. Address 0 is skipped.
func (s *Service) Deliver(ctx context.Context, batch *schedule.Batch) (Stats, error) {
	var st Stats
	if batch == nil || batch.Len() == 0 {
		return st, nil
	}
	if s.sender == nil {
		return st, ErrNoSender
	}

	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	first := true
	for _, addr := range batch.Addresses() {
		ns := batch.For(addr)
		if addr == 0 {
			st.Unaddressed += len(ns)
			continue
		}
		if !first && cfg.Pace > 0 {
			select {
			case <-ctx.Done():
				return st, ctx.Err()
			case <-time.After(cfg.Pace):
			}
		}
		first = false
		st.Addresses++

		for _, msg := range Compose(ns) {
			st.Messages++
			if err := lim.Wait(ctx); err != nil {
				return st, err
			}
			err := s.send(ctx, cfg, addr, msg.Text)
			kind := msg.Kind.String()
			now := time.Now()
			if err != nil {
				st.Failed++
				s.log.Warn("notification failed", logx.Int64("address", addr), logx.String("kind", kind), logx.Err(err))
				s.bus.Publish(eventbus.Event{Type: eventbus.TopicNotifyFailed, Time: now, Data: DeliveryEvent{Address: addr, Kind: kind, At: now, Error: err.Error()}})
				s.appendHistory(HistoryItem{At: now, Address: addr, Text: msg.Text, Error: err.Error()})
				if ctx.Err() != nil {
					return st, ctx.Err()
				}
				continue
			}
			st.Sent++
			s.bus.Publish(eventbus.Event{Type: eventbus.TopicNotifySent, Time: now, Data: DeliveryEvent{Address: addr, Kind: kind, At: now}})
			s.appendHistory(HistoryItem{At: now, Address: addr, Text: msg.Text})
		}
	}
	if st.Unaddressed > 0 {
		s.log.Debug("notifications without address dropped", logx.Int("count", st.Unaddressed))
	}
	return st, nil
}

func (s *Service) send(ctx context.Context, cfg Config, addr int64, text string) error {
	sctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()
	_, err := s.sender.SendText(sctx, kit.ChatTarget{ChatID: addr}, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// History returns recent deliveries, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(it HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > 300 {
		s.history = s.history[len(s.history)-300:]
	}
	s.hmu.Unlock()
}
