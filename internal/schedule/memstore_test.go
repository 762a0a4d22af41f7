package schedule

import (
	"context"
	"errors"
	"sort"
	"time"
)

// memStore is an in-memory Store with copy-on-write transactions.
type memStore struct {
	people []Person
	events []ScheduledEvent
	nextP  int64
	nextE  int64

	window    Window
	hasWindow bool

	failCreateEvent bool
}

func newMemStore() *memStore { return &memStore{nextP: 1, nextE: 1} }

func (m *memStore) clone() *memStore {
	cp := *m
	cp.people = append([]Person(nil), m.people...)
	cp.events = append([]ScheduledEvent(nil), m.events...)
	return &cp
}

func (m *memStore) InTx(ctx context.Context, fn func(Store) error) error {
	tx := m.clone()
	if err := fn(tx); err != nil {
		return err
	}
	*m = *tx
	return nil
}

func (m *memStore) find(pred func(Person) bool) (Person, bool, error) {
	for _, p := range m.people {
		if pred(p) {
			return p, true, nil
		}
	}
	return Person{}, false, nil
}

func (m *memStore) FindByHandle(_ context.Context, h string) (Person, bool, error) {
	return m.find(func(p Person) bool { return p.Handle == h })
}

func (m *memStore) FindByID(_ context.Context, id int64) (Person, bool, error) {
	return m.find(func(p Person) bool { return p.ID == id })
}

func (m *memStore) FindByName(_ context.Context, first, last string) (Person, bool, error) {
	return m.find(func(p Person) bool { return p.FirstName == first && p.LastName == last })
}

func (m *memStore) FindBySurname(_ context.Context, last string) (Person, bool, error) {
	return m.find(func(p Person) bool { return p.LastName == last })
}

func (m *memStore) FindByAddress(_ context.Context, addr int64) (Person, bool, error) {
	return m.find(func(p Person) bool { return p.Address == addr })
}

func (m *memStore) ListPeople(context.Context) ([]Person, error) {
	return append([]Person(nil), m.people...), nil
}

func (m *memStore) CreatePerson(_ context.Context, p *Person) error {
	for _, x := range m.people {
		if x.Handle == p.Handle {
			return errors.New("unique handle")
		}
	}
	if p.Activity == "" {
		p.Activity = DefaultActivity
	}
	p.ID = m.nextP
	m.nextP++
	m.people = append(m.people, *p)
	return nil
}

func (m *memStore) UpdateActivity(_ context.Context, id int64, a string) error {
	for i := range m.people {
		if m.people[i].ID == id {
			m.people[i].Activity = a
		}
	}
	return nil
}

func (m *memStore) UpdateAddress(_ context.Context, h string, addr int64) (bool, error) {
	for i := range m.people {
		if m.people[i].Handle == h {
			m.people[i].Address = addr
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) FindEvent(_ context.Context, pid int64, start time.Time) (ScheduledEvent, bool, error) {
	for _, ev := range m.events {
		if ev.PersonID == pid && ev.Start.Equal(start) {
			return ev, true, nil
		}
	}
	return ScheduledEvent{}, false, nil
}

func (m *memStore) CreateEvent(_ context.Context, ev *ScheduledEvent) error {
	if m.failCreateEvent {
		return errors.New("disk full")
	}
	for _, x := range m.events {
		if x.PersonID == ev.PersonID && x.Start.Equal(ev.Start) {
			return errors.New("unique (person, start)")
		}
	}
	ev.ID = m.nextE
	m.nextE++
	m.events = append(m.events, *ev)
	return nil
}

func (m *memStore) UpdateAction(_ context.Context, id int64, a string) error {
	for i := range m.events {
		if m.events[i].ID == id {
			m.events[i].Action = a
		}
	}
	return nil
}

func (m *memStore) ListEvents(_ context.Context, w Window) ([]ScheduledEvent, error) {
	var out []ScheduledEvent
	for _, ev := range m.events {
		if w.Contains(ev.Start) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].PersonID < out[j].PersonID
	})
	return out, nil
}

func (m *memStore) ListEventsForPerson(ctx context.Context, pid int64, w Window) ([]ScheduledEvent, error) {
	all, _ := m.ListEvents(ctx, w)
	var out []ScheduledEvent
	for _, ev := range all {
		if ev.PersonID == pid {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memStore) CountEvents(context.Context) (int, error) { return len(m.events), nil }

func (m *memStore) SetFeedWindow(_ context.Context, w Window) error {
	m.window, m.hasWindow = w, true
	return nil
}

func (m *memStore) FeedWindow(context.Context) (Window, bool, error) {
	return m.window, m.hasWindow, nil
}
