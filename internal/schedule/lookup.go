package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrPersonNotFound = errors.New("person not found")

// Criteria selects one person. The first populated criterion wins, in field order:
// name+surname, handle, id, address. Lower-priority criteria are not tried on a miss.
type Criteria struct {
	FirstName string
	LastName  string
	Handle    string
	ID        int64
	Address   int64
}

// Filter narrows a schedule query to one person. An empty filter selects everyone.
type Filter struct {
	FirstName string
	LastName  string
	// BySurnameOnly matches on LastName alone; the first person with that surname wins.
	BySurnameOnly bool
}

func (f Filter) empty() bool {
	return strings.TrimSpace(f.FirstName) == "" && strings.TrimSpace(f.LastName) == ""
}

// AuthResult is the outcome of binding a chat to a person.
type AuthResult uint8

const (
	NotOrganizer AuthResult = iota
	Authorized
	AlreadyAuthorized
)

// Directory is the read side of the stores plus the one write the bot performs:
// binding a notification address to a handle.
type Directory struct {
	store Store
}

func NewDirectory(store Store) *Directory {
	return &Directory{store: store}
}

func (d *Directory) FindPerson(ctx context.Context, c Criteria) (Person, error) {
	var (
		p   Person
		ok  bool
		err error
	)
	first, last := strings.TrimSpace(c.FirstName), strings.TrimSpace(c.LastName)
	switch {
	case first != "" && last != "":
		p, ok, err = d.store.FindByName(ctx, first, last)
	case NormalizeHandle(c.Handle) != "":
		p, ok, err = d.store.FindByHandle(ctx, NormalizeHandle(c.Handle))
	case c.ID != 0:
		p, ok, err = d.store.FindByID(ctx, c.ID)
	case c.Address != 0:
		p, ok, err = d.store.FindByAddress(ctx, c.Address)
	default:
		return Person{}, ErrPersonNotFound
	}
	if err != nil {
		return Person{}, err
	}
	if !ok {
		return Person{}, ErrPersonNotFound
	}
	return p, nil
}

// EventsFor returns slots ordered by start. With an empty filter it returns the
// whole schedule across people; otherwise only the matched person's slots.
func (d *Directory) EventsFor(ctx context.Context, f Filter) ([]Slot, error) {
	if f.empty() {
		return d.allSlots(ctx)
	}

	first, last := strings.TrimSpace(f.FirstName), strings.TrimSpace(f.LastName)
	var (
		p   Person
		ok  bool
		err error
	)
	switch {
	case last != "" && (f.BySurnameOnly || first == ""):
		p, ok, err = d.store.FindBySurname(ctx, last)
	case first != "" && last != "":
		p, ok, err = d.store.FindByName(ctx, first, last)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPersonNotFound
	}
	return d.slotsFor(ctx, p)
}

// EventsForHandle is the /myschedule path.
func (d *Directory) EventsForHandle(ctx context.Context, handle string) ([]Slot, error) {
	p, err := d.FindPerson(ctx, Criteria{Handle: handle})
	if err != nil {
		return nil, err
	}
	return d.slotsFor(ctx, p)
}

// day is the span of the last reconciled feed; older days stay stored but are not listed.
func (d *Directory) day(ctx context.Context) (Window, error) {
	w, _, err := d.store.FeedWindow(ctx)
	if err != nil {
		return Window{}, fmt.Errorf("feed window: %w", err)
	}
	return w, nil
}

func (d *Directory) slotsFor(ctx context.Context, p Person) ([]Slot, error) {
	w, err := d.day(ctx)
	if err != nil {
		return nil, err
	}
	evs, err := d.store.ListEventsForPerson(ctx, p.ID, w)
	if err != nil {
		return nil, fmt.Errorf("list events for %d: %w", p.ID, err)
	}
	out := make([]Slot, 0, len(evs))
	for _, ev := range evs {
		out = append(out, Slot{Person: p, Action: ev.Action, Start: ev.Start, End: ev.End})
	}
	return out, nil
}

func (d *Directory) allSlots(ctx context.Context) ([]Slot, error) {
	people, err := d.store.ListPeople(ctx)
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	byID := make(map[int64]Person, len(people))
	for _, p := range people {
		byID[p.ID] = p
	}
	w, err := d.day(ctx)
	if err != nil {
		return nil, err
	}
	evs, err := d.store.ListEvents(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]Slot, 0, len(evs))
	for _, ev := range evs {
		out = append(out, Slot{Person: byID[ev.PersonID], Action: ev.Action, Start: ev.Start, End: ev.End})
	}
	return out, nil
}

// IsAuthorized reports whether the person behind handle has a notification address.
func (d *Directory) IsAuthorized(ctx context.Context, handle string) (bool, error) {
	h := NormalizeHandle(handle)
	if h == "" {
		return false, nil
	}
	p, ok, err := d.store.FindByHandle(ctx, h)
	if err != nil || !ok {
		return false, err
	}
	return p.Address != 0, nil
}

// Authorize binds address to the person with handle.
func (d *Directory) Authorize(ctx context.Context, handle string, address int64) (AuthResult, error) {
	h := NormalizeHandle(handle)
	if h == "" || address == 0 {
		return NotOrganizer, nil
	}
	p, ok, err := d.store.FindByHandle(ctx, h)
	if err != nil {
		return NotOrganizer, err
	}
	if !ok {
		return NotOrganizer, nil
	}
	if p.Address == address {
		return AlreadyAuthorized, nil
	}
	updated, err := d.store.UpdateAddress(ctx, h, address)
	if err != nil {
		return NotOrganizer, fmt.Errorf("update address %q: %w", h, err)
	}
	if !updated {
		return NotOrganizer, nil
	}
	return Authorized, nil
}
