package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sarpras-dashboard/sarpras-sync/format"
	"github.com/sarpras-dashboard/sarpras-sync/hub"
	"github.com/sarpras-dashboard/sarpras-sync/metrics"
)

// Mode selects where documents come from.
type Mode string

const (
	ModeRemote Mode = "remote"
	ModeLocal  Mode = "local"
)

// ParseMode validates a --source flag value.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeRemote, ModeLocal:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid source mode %q (want remote or local)", s)
	}
}

// Document origins.
const (
	OriginRemote = "remote"
	OriginCache  = "cache"
	OriginLocal  = "local"
)

const (
	DefaultTimeout = 30 * time.Second
	DefaultRetries = 2
)

// FetchError describes a failed remote fetch.
type FetchError struct {
	Source string
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetching %s from %s: HTTP %d", e.Source, e.URL, e.Status)
	}
	return fmt.Sprintf("fetching %s from %s: %v", e.Source, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Document is one parsed source. Err is set when the source could not be
// read at all; Records is then empty and the run carries on.
type Document struct {
	Source  Source
	Records []hub.Raw
	Shape   string
	Origin  string
	Err     error
}

// Fetcher reads the sources of a catalog.
type Fetcher struct {
	catalog *Catalog
	mode    Mode
	dataDir string
	client  *resty.Client
	logger  *zap.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithDataDir sets the local source root. In remote mode it is also the
// cache: fetched documents are stored there and read back when a later
// fetch fails.
func WithDataDir(dir string) Option {
	return func(f *Fetcher) { f.dataDir = dir }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.client.SetTimeout(d) }
}

// WithRetries sets how often a failed GET is retried.
func WithRetries(n int) Option {
	return func(f *Fetcher) { f.client.SetRetryCount(n) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// NewFetcher creates a fetcher for catalog in the given mode.
func NewFetcher(catalog *Catalog, mode Mode, opts ...Option) *Fetcher {
	client := resty.New().
		SetTimeout(DefaultTimeout).
		SetRetryCount(DefaultRetries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Accept", "application/json, */*").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	f := &Fetcher{
		catalog: catalog,
		mode:    mode,
		client:  client,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchAll reads every source concurrently. A failing source never cancels
// its siblings; its Document carries the error instead. Documents are
// returned in source order.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) []Document {
	docs := make([]Document, len(sources))
	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			docs[i] = f.Fetch(ctx, src)
			return nil
		})
	}
	_ = g.Wait()
	return docs
}

// Fetch reads and parses one source. A remote body that cannot be fetched
// or parsed falls back to the cached copy under the data directory.
func (f *Fetcher) Fetch(ctx context.Context, src Source) Document {
	start := time.Now()
	doc := Document{Source: src}

	records, shape, origin, err := f.load(ctx, src)
	doc.Origin = origin
	metrics.RecordFetch(src.Name, origin, time.Since(start).Seconds())
	if err != nil {
		doc.Err = err
		f.logger.Warn("source unavailable, continuing without it",
			zap.String("source", src.Name),
			zap.String("origin", origin),
			zap.Error(err),
		)
		return doc
	}
	doc.Records = records
	doc.Shape = shape

	f.logger.Info("source loaded",
		zap.String("source", src.Name),
		zap.String("origin", origin),
		zap.String("shape", doc.Shape),
		zap.Int("records", len(records)),
	)
	return doc
}

func (f *Fetcher) load(ctx context.Context, src Source) ([]hub.Raw, string, string, error) {
	if f.mode == ModeLocal {
		records, shape, err := f.readLocal(src)
		return records, shape, OriginLocal, err
	}

	records, shape, rerr := f.remote(ctx, src)
	if rerr == nil {
		return records, shape, OriginRemote, nil
	}
	if f.dataDir == "" {
		return nil, "", OriginRemote, rerr
	}

	records, shape, err := f.readLocal(src)
	if err != nil {
		f.logger.Debug("no usable cached copy",
			zap.String("source", src.Name),
			zap.Error(err),
		)
		return nil, "", OriginRemote, rerr
	}
	f.logger.Warn("remote source unusable, using cached copy",
		zap.String("source", src.Name),
		zap.Error(rerr),
	)
	return records, shape, OriginCache, nil
}

// remote fetches and parses src. Only bodies that parsed are cached.
func (f *Fetcher) remote(ctx context.Context, src Source) ([]hub.Raw, string, error) {
	data, err := f.get(ctx, src)
	if err != nil {
		return nil, "", err
	}
	records, shape, err := decode(src, data)
	if err != nil {
		return nil, "", err
	}
	f.store(src, data)
	return records, shape, nil
}

func (f *Fetcher) readLocal(src Source) ([]hub.Raw, string, error) {
	data, err := os.ReadFile(f.localPath(src))
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", src.Name, err)
	}
	return decode(src, data)
}

func (f *Fetcher) get(ctx context.Context, src Source) ([]byte, error) {
	u, err := f.catalog.URLFor(src)
	if err != nil {
		return nil, &FetchError{Source: src.Name, Err: err}
	}
	resp, err := f.client.R().SetContext(ctx).Get(u)
	if err != nil {
		return nil, &FetchError{Source: src.Name, URL: u, Err: err}
	}
	if resp.IsError() {
		return nil, &FetchError{Source: src.Name, URL: u, Status: resp.StatusCode(), Err: errors.New(resp.Status())}
	}
	return resp.Body(), nil
}

// store writes a fetched document into the cache directory. Failures only
// cost the fallback, so they are logged and ignored.
func (f *Fetcher) store(src Source, data []byte) {
	if f.dataDir == "" {
		return
	}
	path := f.localPath(src)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		f.logger.Debug("cache directory unavailable", zap.String("path", path), zap.Error(err))
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		f.logger.Debug("cache write failed", zap.String("path", path), zap.Error(err))
	}
}

func (f *Fetcher) localPath(src Source) string {
	return filepath.Join(f.dataDir, filepath.FromSlash(src.File))
}

func parse(src Source, data []byte, opts *format.ParseOptions) ([]hub.Raw, error) {
	var (
		p   format.Parser
		err error
	)
	if src.Format != "" {
		p, err = format.GetParser(src.Format)
	} else {
		var f format.Format
		f, err = format.DetectFormat(src.File, peek(data))
		if err == nil {
			var ok bool
			if p, ok = f.(format.Parser); !ok {
				err = fmt.Errorf("format %s does not support parsing", f.Name())
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return p.Parse(bytes.NewReader(data), opts)
}

// ParseFile reads a local document outside any catalog, as the upsert
// drivers do for their single input file.
func ParseFile(path, formatName, sheet string) ([]hub.Raw, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", path, err)
	}
	src := Source{Name: filepath.Base(path), File: path, Format: formatName, Sheet: sheet}
	return decode(src, data)
}

// decode parses data with the format of src and reports the detected shape.
func decode(src Source, data []byte) ([]hub.Raw, string, error) {
	opts := &format.ParseOptions{SourceName: src.Name, Sheet: src.Sheet}
	records, err := parse(src, data, opts)
	if err != nil {
		return nil, "", err
	}
	return records, opts.Shape, nil
}

func peek(data []byte) []byte {
	if len(data) > 512 {
		return data[:512]
	}
	return data
}
