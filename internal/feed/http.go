package feed

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"

	logx "schedbot/pkg/logx"
)

var (
	// ErrNotModified is returned when the server answers 304 and no cached body exists.
	ErrNotModified = errors.New("not modified and no cached body")
	// ErrSheetTooLarge is returned when a download exceeds the size cap.
	ErrSheetTooLarge = errors.New("sheet export too large")
)

// maxSheetBytes caps a single export download.
const maxSheetBytes = 16 << 20

// SheetsExportURL builds the CSV export URL of one Google Sheets tab.
func SheetsExportURL(spreadsheetID, gid string) string {
	u := "https://docs.google.com/spreadsheets/d/" + url.PathEscape(spreadsheetID) + "/export?format=csv"
	if gid != "" {
		u += "&gid=" + url.QueryEscape(gid)
	}
	return u
}

type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HTTPSource downloads the sheet with conditional requests. When CacheDir is
// set, the last good body is kept on disk and served on 304, on non-OK
// statuses and on network errors.
type HTTPSource struct {
	url      string
	cacheDir string
	client   *http.Client
	limit    int64
	log      logx.Logger
}

func NewHTTPSource(rawURL, cacheDir string, timeout time.Duration, log logx.Logger) *HTTPSource {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSource{
		url:      rawURL,
		cacheDir: cacheDir,
		client:   &http.Client{Timeout: timeout},
		limit:    maxSheetBytes,
		log:      log,
	}
}

func (s *HTTPSource) Name() string { return "http" }

func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	if s.url == "" {
		return nil, errors.New("feed url is empty")
	}
	cachePath := s.cachePath()
	var (
		meta   cacheMeta
		cached []byte
	)
	if cachePath != "" {
		if err := os.MkdirAll(cachePath, 0o700); err != nil {
			return nil, err
		}
		var err error
		if meta, err = loadMeta(cachePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.log.Debug("sheet cache meta unreadable; fetching unconditionally", logx.Err(err))
		}
		if cached, err = os.ReadFile(filepath.Join(cachePath, "body.csv")); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.log.Debug("sheet cache body unreadable", logx.Err(err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	if len(cached) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if len(cached) > 0 && ctx.Err() == nil {
			s.log.Warn("sheet fetch failed; using cached body", logx.String("url", redactURL(s.url)), logx.Err(err))
			return cached, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, s.limit+1))
		if err != nil {
			return nil, err
		}
		if int64(len(body)) > s.limit {
			return nil, fmt.Errorf("%w: over %d bytes", ErrSheetTooLarge, s.limit)
		}
		if cachePath != "" {
			m := cacheMeta{
				URL:          s.url,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
			}
			if err := saveCache(cachePath, m, body); err != nil {
				s.log.Warn("sheet cache save failed", logx.Err(err))
			}
		}
		return body, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return nil, ErrNotModified
		}
		s.log.Debug("sheet not modified; using cache", logx.String("url", redactURL(s.url)))
		return cached, nil

	default:
		if len(cached) > 0 {
			s.log.Warn("sheet fetch non-OK; using cached body", logx.String("url", redactURL(s.url)), logx.Int("status", resp.StatusCode))
			return cached, nil
		}
		return nil, fmt.Errorf("sheet fetch: %s", resp.Status)
	}
}

func (s *HTTPSource) cachePath() string {
	if s.cacheDir == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s.url))
	return filepath.Join(s.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadMeta(dir string) (cacheMeta, error) {
	var m cacheMeta
	b, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return cacheMeta{}, err
	}
	return m, nil
}

// saveCache replaces both files atomically, body first so meta never
// describes a body that is not on disk.
func saveCache(dir string, m cacheMeta, body []byte) error {
	if err := atomic.WriteFile(filepath.Join(dir, "body.csv"), bytes.NewReader(body)); err != nil {
		return err
	}
	m.UpdatedAt = time.Now().UTC()
	b, err := json.MarshalIndent(&m, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(filepath.Join(dir, "meta.json"), bytes.NewReader(b))
}

// redactURL keeps scheme and host only; sheet ids and tokens stay out of logs.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
