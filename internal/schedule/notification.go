package schedule

import (
	"fmt"
	"time"
)

type Kind uint8

const (
	// ActivityChange is a heads-up that the person's next slot is about to start.
	ActivityChange Kind = iota + 1
	// ScheduleUpdate reports a slot whose action changed in the sheet.
	ScheduleUpdate
)

func (k Kind) String() string {
	switch k {
	case ActivityChange:
		return "activity_change"
	case ScheduleUpdate:
		return "schedule_update"
	default:
		return "unknown"
	}
}

type Notification struct {
	Kind     Kind
	PersonID int64
	Handle   string
	Address  int64
	Action   string
	Start    time.Time
	End      time.Time
}

// Line renders the notification as a single human readable line.
func (n Notification) Line() string {
	switch n.Kind {
	case ActivityChange:
		return fmt.Sprintf("Activity change: starting at %s, %s", n.Start.Format("15:04"), n.Action)
	default:
		return fmt.Sprintf("%s–%s - %s", n.Start.Format("15:04"), n.End.Format("15:04"), n.Action)
	}
}

// Batch groups one cycle's notifications by address, keeping first-seen address order.
type Batch struct {
	order  []int64
	byAddr map[int64][]Notification
}

func NewBatch() *Batch {
	return &Batch{byAddr: make(map[int64][]Notification)}
}

func (b *Batch) Add(n Notification) {
	if _, ok := b.byAddr[n.Address]; !ok {
		b.order = append(b.order, n.Address)
	}
	b.byAddr[n.Address] = append(b.byAddr[n.Address], n)
}

func (b *Batch) Addresses() []int64 {
	if b == nil {
		return nil
	}
	return append([]int64(nil), b.order...)
}

func (b *Batch) For(address int64) []Notification {
	if b == nil {
		return nil
	}
	return b.byAddr[address]
}

// Len is the total number of notifications.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	n := 0
	for _, ns := range b.byAddr {
		n += len(ns)
	}
	return n
}

// Lines renders every notification for address, in insertion order.
func (b *Batch) Lines(address int64) []string {
	ns := b.For(address)
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.Line())
	}
	return out
}
