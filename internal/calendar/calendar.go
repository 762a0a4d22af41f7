// Package calendar renders stored schedule slots as an iCalendar feed.
package calendar

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"time"

	ical "github.com/arran4/golang-ical"

	"schedbot/internal/schedule"
)

const defaultProductID = "-//schedbot//schedule export//EN"

type Options struct {
	ProductID string
	// Name becomes X-WR-CALNAME.
	Name string
	// Stamp is written as DTSTAMP on every event. Zero means time.Now.
	Stamp time.Time
	// Skip drops slots with this action, typically the layout placeholder.
	Skip string
}

// Build merges consecutive slots of one person with the same action into a
// single VEVENT. UIDs derive from person id and start, so re-exports are stable.
func Build(slots []schedule.Slot, opt Options) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	pid := opt.ProductID
	if pid == "" {
		pid = defaultProductID
	}
	cal.SetProductId(pid)
	if opt.Name != "" {
		cal.SetXWRCalName(opt.Name)
	}
	stamp := opt.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}

	for _, run := range mergeRuns(slots) {
		if opt.Skip != "" && run.Action == opt.Skip {
			continue
		}
		ev := cal.AddEvent(fmt.Sprintf("%d-%d@schedbot", run.Person.ID, run.Start.Unix()))
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(run.Start)
		ev.SetEndAt(run.End)
		ev.SetSummary(run.Action)
		if name := run.Person.FullName(); name != "" {
			ev.SetDescription(name)
		}
	}
	return cal
}

func Write(w io.Writer, slots []schedule.Slot, opt Options) error {
	return Build(slots, opt).SerializeTo(w)
}

// mergeRuns groups slots per person, ordered by (person, start), and joins
// back-to-back slots with the same action.
func mergeRuns(slots []schedule.Slot) []schedule.Slot {
	sorted := slices.Clone(slots)
	slices.SortStableFunc(sorted, func(a, b schedule.Slot) int {
		if c := cmp.Compare(a.Person.ID, b.Person.ID); c != 0 {
			return c
		}
		return a.Start.Compare(b.Start)
	})

	out := make([]schedule.Slot, 0, len(sorted))
	for _, s := range sorted {
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.Person.ID == s.Person.ID && last.Action == s.Action && last.End.Equal(s.Start) {
				last.End = s.End
				continue
			}
		}
		out = append(out, s)
	}
	return out
}
