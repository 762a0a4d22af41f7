package feed

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	logx "schedbot/pkg/logx"
)

// Source returns the raw CSV export of the schedule sheet.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	Name() string
}

// FileSource reads the sheet from a local CSV file.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return "file" }

func (s FileSource) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}
	return b, nil
}

// Feed fetches the sheet and parses it into one cycle of entries.
type Feed struct {
	src    Source
	layout Layout
	loc    *time.Location
	date   string
	now    func() time.Time
	log    logx.Logger
}

type Option func(*Feed)

func WithLogger(log logx.Logger) Option { return func(f *Feed) { f.log = log } }

// WithDate pins the date of the first slot (YYYY-MM-DD).
func WithDate(date string) Option { return func(f *Feed) { f.date = strings.TrimSpace(date) } }

func WithClock(now func() time.Time) Option { return func(f *Feed) { f.now = now } }

func New(src Source, layout Layout, loc *time.Location, opts ...Option) *Feed {
	if loc == nil {
		loc = time.Local
	}
	f := &Feed{src: src, layout: layout, loc: loc, now: time.Now}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *Feed) Source() string { return f.src.Name() }

// Day returns the date of the first slot in the feed location.
func (f *Feed) Day() (time.Time, error) {
	if f.date == "" {
		n := f.now().In(f.loc)
		return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, f.loc), nil
	}
	d, err := time.ParseInLocation("2006-01-02", f.date, f.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("feed date: %w", err)
	}
	return d, nil
}

// Entries fetches and parses the sheet. Skipped rows are logged and returned.
func (f *Feed) Entries(ctx context.Context) (Result, error) {
	day, err := f.Day()
	if err != nil {
		return Result{}, err
	}
	body, err := f.src.Fetch(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s: %w", f.src.Name(), err)
	}
	res, err := f.layout.ReadCSV(bytes.NewReader(body), day)
	if err != nil {
		return Result{}, err
	}
	for _, s := range res.Skipped {
		f.log.Warn("sheet row skipped", logx.Int("row", s.Row), logx.String("reason", s.Reason))
	}
	f.log.Debug("sheet parsed",
		logx.String("source", f.src.Name()),
		logx.Int("entries", len(res.Entries)),
		logx.Int("skipped", len(res.Skipped)),
	)
	return res, nil
}
