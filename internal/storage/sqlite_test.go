package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"schedbot/internal/schedule"
	logx "schedbot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *SQLite {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db"), Location: time.UTC}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestPeopleCRUD(t *testing.T) {
	t.Parallel()
	st := openTest(t)
	ctx := context.Background()

	p := schedule.Person{FirstName: "Ann", LastName: "Lee", Handle: "@Ann"}
	require.NoError(t, st.CreatePerson(ctx, &p))
	assert.NotZero(t, p.ID)
	assert.Equal(t, "ann", p.Handle)
	assert.Equal(t, schedule.DefaultActivity, p.Activity)

	dup := schedule.Person{Handle: "ann"}
	assert.Error(t, st.CreatePerson(ctx, &dup), "handle is unique")

	got, ok, err := st.FindByHandle(ctx, "ANN")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p, got)

	_, ok, err = st.FindByName(ctx, "Ann", "Lee")
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = st.FindBySurname(ctx, "Lee")
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = st.FindByAddress(ctx, 0)
	require.NoError(t, err)
	assert.False(t, ok, "address 0 means unset and never matches")

	require.NoError(t, st.UpdateActivity(ctx, p.ID, "Talk"))
	got, _, _ = st.FindByID(ctx, p.ID)
	assert.Equal(t, "Talk", got.Activity)
}

func TestUpdateAddressKeepsAddressUnique(t *testing.T) {
	t.Parallel()
	st := openTest(t)
	ctx := context.Background()
	require.NoError(t, st.CreatePerson(ctx, &schedule.Person{Handle: "a"}))
	require.NoError(t, st.CreatePerson(ctx, &schedule.Person{Handle: "b"}))

	ok, err := st.UpdateAddress(ctx, "a", 100)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.UpdateAddress(ctx, "b", 100)
	require.NoError(t, err)
	assert.True(t, ok)

	a, _, _ := st.FindByHandle(ctx, "a")
	b, _, _ := st.FindByHandle(ctx, "b")
	assert.Zero(t, a.Address)
	assert.Equal(t, int64(100), b.Address)

	ok, err = st.UpdateAddress(ctx, "nobody", 5)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEventsUniqueAndOrdered(t *testing.T) {
	t.Parallel()
	st := openTest(t)
	ctx := context.Background()
	p := schedule.Person{Handle: "a"}
	require.NoError(t, st.CreatePerson(ctx, &p))

	base := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	for _, h := range []int{2, 0, 1} {
		start := base.Add(time.Duration(h) * time.Hour)
		require.NoError(t, st.CreateEvent(ctx, &schedule.ScheduledEvent{PersonID: p.ID, Action: "Talk", Start: start, End: start.Add(time.Hour)}))
	}
	err := st.CreateEvent(ctx, &schedule.ScheduledEvent{PersonID: p.ID, Action: "Dup", Start: base, End: base.Add(time.Hour)})
	assert.Error(t, err, "(person, start) is unique")

	evs, err := st.ListEventsForPerson(ctx, p.ID, schedule.Window{})
	require.NoError(t, err)
	require.Len(t, evs, 3)
	assert.True(t, evs[0].Start.Equal(base))
	assert.True(t, evs[2].Start.Equal(base.Add(2*time.Hour)))

	ev, ok, err := st.FindEvent(ctx, p.ID, base.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, st.UpdateAction(ctx, ev.ID, "Workshop"))
	ev, _, _ = st.FindEvent(ctx, p.ID, base.Add(time.Hour))
	assert.Equal(t, "Workshop", ev.Action)

	n, err := st.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	evs, err = st.ListEvents(ctx, schedule.Window{From: base.Add(time.Hour), To: base.Add(2 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "Workshop", evs[0].Action)
}

func TestFeedWindowRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTest(t)
	ctx := context.Background()

	_, ok, err := st.FeedWindow(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	day := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	for _, from := range []time.Time{day, day.AddDate(0, 0, 1)} {
		want := schedule.Window{From: from, To: from.Add(9 * time.Hour)}
		require.NoError(t, st.SetFeedWindow(ctx, want))
		got, ok, err := st.FeedWindow(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, got.From.Equal(want.From))
		assert.True(t, got.To.Equal(want.To))
	}
}

func TestInTxRollsBack(t *testing.T) {
	t.Parallel()
	st := openTest(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.InTx(ctx, func(s schedule.Store) error {
		require.NoError(t, s.CreatePerson(ctx, &schedule.Person{Handle: "ghost"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	people, err := st.ListPeople(ctx)
	require.NoError(t, err)
	assert.Empty(t, people)
}

func TestReconcileAgainstSQLite(t *testing.T) {
	t.Parallel()
	st := openTest(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 15, 6, 0, 0, 0, time.UTC)
	r := schedule.NewReconciler(st, schedule.DefaultConfig(), schedule.WithClock(func() time.Time { return now }))

	start := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	entries := []schedule.Entry{
		{FirstName: "Ann", LastName: "Lee", Handle: "ann", Action: "Talk", Start: start, End: start.Add(30 * time.Minute)},
		{FirstName: "Ann", LastName: "Lee", Handle: "ann", Action: "Rest", Start: start.Add(30 * time.Minute), End: start.Add(time.Hour)},
	}
	_, rep, err := r.Reconcile(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, schedule.Bootstrap, rep.Mode)

	_, err = st.UpdateAddress(ctx, "ann", 77)
	require.NoError(t, err)

	entries[0].Action = "Workshop"
	batch, rep, err := r.Reconcile(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, schedule.SteadyState, rep.Mode)
	assert.Equal(t, []string{"09:00–09:30 - Workshop"}, batch.Lines(77))

	batch, _, err = r.Reconcile(ctx, entries)
	require.NoError(t, err)
	assert.Zero(t, batch.Len())
}

func TestNextFeedDayAgainstSQLite(t *testing.T) {
	t.Parallel()
	st := openTest(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 15, 20, 0, 0, 0, time.UTC)
	r := schedule.NewReconciler(st, schedule.Config{InsertMissing: true}, schedule.WithClock(func() time.Time { return now }))
	dir := schedule.NewDirectory(st)

	sheet := func(day time.Time) []schedule.Entry {
		start := day.Add(9 * time.Hour)
		return []schedule.Entry{
			{Handle: "ann", Action: "Talk", Start: start, End: start.Add(30 * time.Minute)},
			{Handle: "ann", Action: "Rest", Start: start.Add(30 * time.Minute), End: start.Add(time.Hour)},
		}
	}
	day := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	_, _, err := r.Reconcile(ctx, sheet(day))
	require.NoError(t, err)
	_, err = st.UpdateAddress(ctx, "ann", 42)
	require.NoError(t, err)

	now = now.Add(5 * time.Hour)
	batch, rep, err := r.Reconcile(ctx, sheet(day.AddDate(0, 0, 1)))
	require.NoError(t, err)
	assert.Equal(t, 2, rep.EventsCreated)
	assert.Zero(t, batch.Len())

	n, err := st.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	mine, err := dir.EventsForHandle(ctx, "ann")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, 16, mine[0].Start.Day())
}
