// Package recordlog loads already-recorded page loads (DevTools protocol logs
// and HAR archives) into network records. It never talks to a browser.
package recordlog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/raysh454/netaudit/internal/audit"
	"github.com/raysh454/netaudit/internal/model"
)

// Format names a recorded log format.
type Format string

const (
	FormatAuto     Format = "auto"
	FormatDevtools Format = "devtools"
	FormatHAR      Format = "har"
)

var (
	ErrMalformedLog  = errors.New("recordlog: malformed log")
	ErrUnknownFormat = errors.New("recordlog: unknown log format")
)

// ParseFormat validates a user supplied format name. Empty means auto.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatDevtools, FormatHAR:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Load parses data in the given format. FormatAuto picks HAR for a JSON
// object and a DevTools log for a JSON array.
func Load(format Format, data []byte) ([]model.NetworkRecord, error) {
	if format == FormatAuto || format == "" {
		format = sniff(data)
	}
	switch format {
	case FormatDevtools:
		return ParseDevtoolsLog(data)
	case FormatHAR:
		return ParseHAR(data)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

func sniff(data []byte) Format {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return FormatHAR
	}
	return FormatDevtools
}

// newRecord derives scheme and domain from rawURL. Opaque URLs (data:, blob:)
// keep their scheme and get an empty domain.
func newRecord(rawURL string, rt model.ResourceType) model.NetworkRecord {
	rec := model.NetworkRecord{URL: rawURL, ResourceType: rt}
	if u, err := url.Parse(rawURL); err == nil {
		rec.Scheme = strings.ToLower(u.Scheme)
		rec.Domain = strings.ToLower(u.Hostname())
	} else if i := strings.IndexByte(rawURL, ':'); i > 0 {
		rec.Scheme = strings.ToLower(rawURL[:i])
	}
	return rec
}

// ─── Sources ───────────────────────────────────────────────────────────

// FileSource reads and parses a log file each time it is asked for records.
type FileSource struct {
	Path   string
	Format Format
}

func (s FileSource) NetworkRecords(ctx context.Context) ([]model.NetworkRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read log %s: %w", s.Path, err)
	}
	return Load(s.Format, data)
}

// BytesSource parses an in-memory log.
type BytesSource struct {
	Data   []byte
	Format Format
}

func (s BytesSource) NetworkRecords(ctx context.Context) ([]model.NetworkRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Load(s.Format, s.Data)
}

// StaticSource returns fixed records, or Err when set.
type StaticSource struct {
	Records []model.NetworkRecord
	Err     error
}

func (s StaticSource) NetworkRecords(context.Context) ([]model.NetworkRecord, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Records, nil
}

type onceSource struct {
	src     audit.RecordSource
	once    sync.Once
	records []model.NetworkRecord
	err     error
}

// Once memoizes src: the first call fetches, every later call gets the same
// records or the same error. The context of the first call is the one used.
func Once(src audit.RecordSource) audit.RecordSource {
	if src == nil {
		return nil
	}
	if o, ok := src.(*onceSource); ok {
		return o
	}
	return &onceSource{src: src}
}

func (o *onceSource) NetworkRecords(ctx context.Context) ([]model.NetworkRecord, error) {
	o.once.Do(func() {
		o.records, o.err = o.src.NetworkRecords(ctx)
	})
	return o.records, o.err
}
