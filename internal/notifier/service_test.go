package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"schedbot/internal/eventbus"
	"schedbot/internal/schedule"
	kit "schedbot/internal/transport"
	logx "schedbot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	chat int64
	text string
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sent
	failOn int64
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if to.ChatID == f.failOn {
		return kit.MessageRef{}, errors.New("blocked by user")
	}
	f.sent = append(f.sent, sent{chat: to.ChatID, text: text})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func at(h, m int) time.Time { return time.Date(2026, 10, 15, h, m, 0, 0, time.UTC) }

func testBatch() *schedule.Batch {
	b := schedule.NewBatch()
	b.Add(schedule.Notification{Kind: schedule.ScheduleUpdate, Address: 10, Action: "Talk", Start: at(9, 0), End: at(9, 30)})
	b.Add(schedule.Notification{Kind: schedule.ActivityChange, Address: 10, Action: "Workshop", Start: at(10, 0), End: at(10, 30)})
	b.Add(schedule.Notification{Kind: schedule.ScheduleUpdate, Address: 10, Action: "Rest", Start: at(11, 0), End: at(11, 30)})
	b.Add(schedule.Notification{Kind: schedule.ScheduleUpdate, Address: 0, Action: "Talk", Start: at(9, 0), End: at(9, 30)})
	b.Add(schedule.Notification{Kind: schedule.ScheduleUpdate, Address: 20, Action: "Desk", Start: at(9, 0), End: at(9, 30)})
	return b
}

func TestCompose(t *testing.T) {
	t.Parallel()
	msgs := Compose(testBatch().For(10))
	require.Len(t, msgs, 2)
	assert.Equal(t, schedule.ActivityChange, msgs[0].Kind)
	assert.Equal(t, "Activity change: starting at 10:00, Workshop", msgs[0].Text)
	assert.Equal(t, schedule.ScheduleUpdate, msgs[1].Kind)
	assert.Equal(t, "Schedule changed:\n09:00–09:30 - Talk\n11:00–11:30 - Rest", msgs[1].Text)
}

func TestDeliver(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{failOn: 20}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	svc := New(Config{RatePerSec: 100, Pace: time.Millisecond}, snd, logx.Nop(), bus)
	st, err := svc.Deliver(context.Background(), testBatch())
	require.NoError(t, err)

	assert.Equal(t, Stats{Addresses: 2, Messages: 3, Sent: 2, Failed: 1, Unaddressed: 1}, st)
	require.Len(t, snd.sent, 2)
	for _, s := range snd.sent {
		assert.Equal(t, int64(10), s.chat)
	}
	assert.Len(t, svc.History(), 3)

	var failed int
	for i := 0; i < 3; i++ {
		e := <-events
		if e.Type == eventbus.TopicNotifyFailed {
			failed++
			assert.Equal(t, int64(20), e.Data.(DeliveryEvent).Address)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestDeliverEmptyAndNoSender(t *testing.T) {
	t.Parallel()
	svc := New(Config{}, nil, logx.Logger{}, nil)
	st, err := svc.Deliver(context.Background(), schedule.NewBatch())
	require.NoError(t, err)
	assert.Zero(t, st)

	_, err = svc.Deliver(context.Background(), testBatch())
	assert.ErrorIs(t, err, ErrNoSender)
}

func TestDeliverStopsOnCancel(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{}
	svc := New(Config{Pace: time.Hour}, snd, logx.Nop(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := svc.Deliver(ctx, testBatch())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, snd.sent, 2, "first address is sent before the pause")
}
