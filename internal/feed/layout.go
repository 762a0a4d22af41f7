package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"schedbot/internal/schedule"
)

var ErrLayout = errors.New("sheet layout mismatch")

// Layout locates names, handles and slots in the grid. Indexes are zero-based.
type Layout struct {
	HeaderRow       int
	FirstPersonRow  int
	NameColumn      int // "Surname Name"
	HandleColumn    int
	FirstSlotColumn int
	LastSlotColumn  int // inclusive
	// Placeholder replaces empty slot cells.
	Placeholder string
	// DayEnd is the end time (HH:MM) of the last slot.
	DayEnd string
}

func DefaultLayout() Layout {
	return Layout{
		HeaderRow:       0,
		FirstPersonRow:  1,
		NameColumn:      0,
		HandleColumn:    1,
		FirstSlotColumn: 6,
		LastSlotColumn:  68,
		Placeholder:     "Rest",
		DayEnd:          "00:00",
	}
}

// RowError describes a skipped row. Row is 1-based, as shown in the sheet.
type RowError struct {
	Row    int
	Reason string
}

func (e RowError) Error() string { return fmt.Sprintf("row %d: %s", e.Row, e.Reason) }

type Result struct {
	Entries []schedule.Entry
	Skipped []RowError
}

// ReadCSV parses a CSV export with the layout. day is the date of the first slot;
// its location is applied to every timestamp.
func (l Layout) ReadCSV(r io.Reader, day time.Time) (Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return Result{}, fmt.Errorf("reading CSV: %w", err)
	}
	return l.Parse(records, day)
}

// Parse maps a grid of cells onto entries, grouped by person and ordered by start.
func (l Layout) Parse(records [][]string, day time.Time) (Result, error) {
	if l.HeaderRow < 0 || l.HeaderRow >= len(records) {
		return Result{}, fmt.Errorf("%w: header row %d missing", ErrLayout, l.HeaderRow+1)
	}
	starts, ends, err := l.slotTimes(records[l.HeaderRow], day)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for i := l.FirstPersonRow; i < len(records); i++ {
		row := records[i]
		if blankRow(row) {
			continue
		}
		name := strings.Fields(cell(row, l.NameColumn))
		if len(name) < 2 {
			res.Skipped = append(res.Skipped, RowError{Row: i + 1, Reason: fmt.Sprintf("name %q is not \"Surname Name\"", cell(row, l.NameColumn))})
			continue
		}
		handle := schedule.NormalizeHandle(cell(row, l.HandleColumn))
		if handle == "" {
			res.Skipped = append(res.Skipped, RowError{Row: i + 1, Reason: "missing handle"})
			continue
		}

		for s := range starts {
			action := strings.TrimSpace(cell(row, l.FirstSlotColumn+s))
			if action == "" {
				action = l.Placeholder
			}
			res.Entries = append(res.Entries, schedule.Entry{
				FirstName: name[1],
				LastName:  name[0],
				Handle:    handle,
				Action:    action,
				Start:     starts[s],
				End:       ends[s],
			})
		}
	}
	return res, nil
}

// slotTimes reads the header cells as clock times. A time earlier than the
// previous one rolls the date forward; the last slot ends at DayEnd.
func (l Layout) slotTimes(header []string, day time.Time) ([]time.Time, []time.Time, error) {
	last := min(l.LastSlotColumn, len(header)-1)
	if l.FirstSlotColumn < 0 || last < l.FirstSlotColumn {
		return nil, nil, fmt.Errorf("%w: no slot columns in header", ErrLayout)
	}

	date := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	starts := make([]time.Time, 0, last-l.FirstSlotColumn+1)
	prev := -1
	for c := l.FirstSlotColumn; c <= last; c++ {
		raw := strings.TrimSpace(header[c])
		if raw == "" && c > l.FirstSlotColumn {
			break
		}
		mins, err := clockMinutes(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: header column %d: %v", ErrLayout, c+1, err)
		}
		if prev >= 0 && mins < prev {
			date = date.AddDate(0, 0, 1)
		}
		prev = mins
		starts = append(starts, at(date, mins))
	}

	endMins, err := clockMinutes(l.DayEnd)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: day end: %v", ErrLayout, err)
	}
	ends := make([]time.Time, len(starts))
	for i := range starts[:len(starts)-1] {
		ends[i] = starts[i+1]
	}
	lastStart := starts[len(starts)-1]
	end := at(date, endMins)
	if !end.After(lastStart) {
		end = at(date.AddDate(0, 0, 1), endMins)
	}
	ends[len(ends)-1] = end
	return starts, ends, nil
}

func at(date time.Time, mins int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), mins/60, mins%60, 0, 0, date.Location())
}

// clockMinutes parses "H:MM" or "HH:MM" into minutes after midnight.
func clockMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
