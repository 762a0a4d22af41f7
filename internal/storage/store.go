package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"schedbot/internal/schedule"
)

// store implements schedule.Store on top of a querier (db or tx).
type store struct {
	q   querier
	loc *time.Location
}

const personCols = `id, first_name, last_name, handle, address, current_action`

func scanPerson(row interface{ Scan(...any) error }) (schedule.Person, error) {
	var p schedule.Person
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Handle, &p.Address, &p.Activity)
	return p, err
}

func (s *store) findPerson(ctx context.Context, where string, args ...any) (schedule.Person, bool, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+personCols+` FROM people WHERE `+where+` ORDER BY id LIMIT 1`, args...)
	p, err := scanPerson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.Person{}, false, nil
	}
	if err != nil {
		return schedule.Person{}, false, err
	}
	return p, true, nil
}

func (s *store) FindByHandle(ctx context.Context, handle string) (schedule.Person, bool, error) {
	return s.findPerson(ctx, `handle = ?`, schedule.NormalizeHandle(handle))
}

func (s *store) FindByID(ctx context.Context, id int64) (schedule.Person, bool, error) {
	return s.findPerson(ctx, `id = ?`, id)
}

func (s *store) FindByName(ctx context.Context, firstName, lastName string) (schedule.Person, bool, error) {
	return s.findPerson(ctx, `first_name = ? AND last_name = ?`, strings.TrimSpace(firstName), strings.TrimSpace(lastName))
}

func (s *store) FindBySurname(ctx context.Context, lastName string) (schedule.Person, bool, error) {
	return s.findPerson(ctx, `last_name = ?`, strings.TrimSpace(lastName))
}

func (s *store) FindByAddress(ctx context.Context, address int64) (schedule.Person, bool, error) {
	if address == 0 {
		return schedule.Person{}, false, nil
	}
	return s.findPerson(ctx, `address = ?`, address)
}

func (s *store) ListPeople(ctx context.Context) ([]schedule.Person, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+personCols+` FROM people ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schedule.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *store) CreatePerson(ctx context.Context, p *schedule.Person) error {
	if p == nil {
		return errors.New("nil person")
	}
	p.Handle = schedule.NormalizeHandle(p.Handle)
	if p.Handle == "" {
		return errors.New("person handle is required")
	}
	if strings.TrimSpace(p.Activity) == "" {
		p.Activity = schedule.DefaultActivity
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO people(first_name, last_name, handle, address, current_action) VALUES(?,?,?,?,?)`,
		strings.TrimSpace(p.FirstName), strings.TrimSpace(p.LastName), p.Handle, p.Address, p.Activity,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

func (s *store) UpdateActivity(ctx context.Context, personID int64, activity string) error {
	_, err := s.q.ExecContext(ctx, `UPDATE people SET current_action = ? WHERE id = ?`, activity, personID)
	return err
}

func (s *store) UpdateAddress(ctx context.Context, handle string, address int64) (bool, error) {
	h := schedule.NormalizeHandle(handle)
	if address != 0 {
		if _, err := s.q.ExecContext(ctx, `UPDATE people SET address = 0 WHERE address = ? AND handle != ?`, address, h); err != nil {
			return false, fmt.Errorf("release address: %w", err)
		}
	}
	res, err := s.q.ExecContext(ctx, `UPDATE people SET address = ? WHERE handle = ?`, address, h)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const eventCols = `id, person_id, action, start_at, end_at`

func (s *store) scanEvent(row interface{ Scan(...any) error }) (schedule.ScheduledEvent, error) {
	var (
		ev         schedule.ScheduledEvent
		start, end int64
	)
	if err := row.Scan(&ev.ID, &ev.PersonID, &ev.Action, &start, &end); err != nil {
		return ev, err
	}
	ev.Start = time.Unix(start, 0).In(s.loc)
	ev.End = time.Unix(end, 0).In(s.loc)
	return ev, nil
}

func (s *store) FindEvent(ctx context.Context, personID int64, start time.Time) (schedule.ScheduledEvent, bool, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+eventCols+` FROM schedule WHERE person_id = ? AND start_at = ?`, personID, start.Unix())
	ev, err := s.scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.ScheduledEvent{}, false, nil
	}
	if err != nil {
		return schedule.ScheduledEvent{}, false, err
	}
	return ev, true, nil
}

func (s *store) CreateEvent(ctx context.Context, ev *schedule.ScheduledEvent) error {
	if ev == nil {
		return errors.New("nil event")
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO schedule(person_id, action, start_at, end_at) VALUES(?,?,?,?)`,
		ev.PersonID, ev.Action, ev.Start.Unix(), ev.End.Unix(),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	ev.ID = id
	return nil
}

func (s *store) UpdateAction(ctx context.Context, eventID int64, action string) error {
	_, err := s.q.ExecContext(ctx, `UPDATE schedule SET action = ? WHERE id = ?`, action, eventID)
	return err
}

func (s *store) listEvents(ctx context.Context, query string, args ...any) ([]schedule.ScheduledEvent, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schedule.ScheduledEvent
	for rows.Next() {
		ev, err := s.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *store) ListEvents(ctx context.Context, w schedule.Window) ([]schedule.ScheduledEvent, error) {
	if w.IsZero() {
		return s.listEvents(ctx, `SELECT `+eventCols+` FROM schedule ORDER BY start_at, person_id`)
	}
	return s.listEvents(ctx, `SELECT `+eventCols+` FROM schedule WHERE start_at >= ? AND start_at < ? ORDER BY start_at, person_id`,
		w.From.Unix(), w.To.Unix())
}

func (s *store) ListEventsForPerson(ctx context.Context, personID int64, w schedule.Window) ([]schedule.ScheduledEvent, error) {
	if w.IsZero() {
		return s.listEvents(ctx, `SELECT `+eventCols+` FROM schedule WHERE person_id = ? ORDER BY start_at`, personID)
	}
	return s.listEvents(ctx, `SELECT `+eventCols+` FROM schedule WHERE person_id = ? AND start_at >= ? AND start_at < ? ORDER BY start_at`,
		personID, w.From.Unix(), w.To.Unix())
}

func (s *store) CountEvents(ctx context.Context) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM schedule`).Scan(&n)
	return n, err
}

func (s *store) SetFeedWindow(ctx context.Context, w schedule.Window) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO feed_window (id, from_at, to_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET from_at = excluded.from_at, to_at = excluded.to_at`,
		w.From.Unix(), w.To.Unix())
	return err
}

func (s *store) FeedWindow(ctx context.Context) (schedule.Window, bool, error) {
	var from, to int64
	err := s.q.QueryRowContext(ctx, `SELECT from_at, to_at FROM feed_window WHERE id = 1`).Scan(&from, &to)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.Window{}, false, nil
	}
	if err != nil {
		return schedule.Window{}, false, err
	}
	return schedule.Window{From: time.Unix(from, 0).In(s.loc), To: time.Unix(to, 0).In(s.loc)}, true, nil
}
