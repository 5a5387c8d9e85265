// Package download retrieves resolved media into the downloads directory.
// Files are streamed to a temporary .part file next to the target and
// renamed into place only once complete, so a partial download never
// appears under its final name.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"postfetch/internal/failure"
	"postfetch/internal/httputil"
	"postfetch/internal/logging"
	"postfetch/internal/media"
	"postfetch/internal/metrics"
)

// Defaults for a Fetcher.
const (
	DefaultTimeout     = 60 * time.Second
	DefaultMaxSize     = 50 * 1024 * 1024
	DefaultMaxRedirect = 5
)

var errTooLarge = errors.New("size limit exceeded")

// Progress is called as bytes arrive. total is -1 when the server did not
// announce a length.
type Progress func(written, total int64)

// Fetcher downloads media descriptors to local files.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	maxSize int64
	log     *zap.Logger
	metrics metrics.Metrics
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithTimeout bounds the whole retrieval, body copy included.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithMaxSize sets the largest accepted file in bytes.
func WithMaxSize(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) { f.log = logging.OrNop(l) }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m metrics.Metrics) Option {
	return func(f *Fetcher) {
		if m != nil {
			f.metrics = m
		}
	}
}

// New returns a Fetcher with the defaults applied.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		// The context carries the deadline; the client itself must not cut
		// a large body short.
		client:  httputil.NewClient(httputil.WithTimeout(0), httputil.WithMaxRedirects(DefaultMaxRedirect)),
		timeout: DefaultTimeout,
		maxSize: DefaultMaxSize,
		log:     zap.NewNop(),
		metrics: metrics.Noop{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// MaxSize returns the size limit in bytes.
func (f *Fetcher) MaxSize() int64 { return f.maxSize }

// Fetch downloads d.SourceURL to path. The request presents the platform's
// origin as Referer. On any failure nothing is left at path.
func (f *Fetcher) Fetch(ctx context.Context, d *media.Descriptor, p media.Platform, path string, progress Progress) (*media.File, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := httputil.NewRequest(ctx, d.SourceURL, httputil.BrowserUserAgent)
	if err != nil {
		return nil, failure.New(failure.NetworkError, "fetch", err)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Referer", p.Referer())

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, failure.New(failure.CodeOf(err), "fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, failure.StatusError("fetch", resp.StatusCode, d.SourceURL)
	}

	total := resp.ContentLength
	if total > f.maxSize {
		return nil, f.tooLarge(total)
	}

	written, err := f.writeAtomic(resp.Body, path, total, progress)
	if err != nil {
		switch {
		case errors.Is(err, errTooLarge):
			return nil, f.tooLarge(written)
		case ctx.Err() != nil:
			return nil, failure.New(failure.NetworkTimeout, "fetch", err)
		}
		var fe *failure.Error
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, failure.New(failure.CodeOf(err), "fetch", err)
	}

	elapsed := time.Since(start)
	f.metrics.ObserveFetch(p.String(), written, elapsed.Seconds())
	f.log.Debug("media stored",
		zap.String("path", path),
		zap.String("size", humanize.Bytes(uint64(written))),
		zap.Duration("elapsed", elapsed),
	)

	return &media.File{Path: path, Size: written, CreatedAt: time.Now()}, nil
}

func (f *Fetcher) tooLarge(n int64) error {
	return failure.New(failure.FileTooLarge, "fetch",
		fmt.Errorf("%s exceeds limit of %s", humanize.Bytes(uint64(n)), humanize.Bytes(uint64(f.maxSize))))
}

// writeAtomic copies body into a temp file in path's directory and renames
// it to path once the byte count checks out.
func (f *Fetcher) writeAtomic(body io.Reader, path string, total int64, progress Progress) (int64, error) {
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	tmpFile, err := os.CreateTemp(dir, base+".*.part")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	var dst io.Writer = tmpFile
	if progress != nil {
		dst = &progressWriter{w: tmpFile, total: total, fn: progress}
	}

	written, err := io.Copy(dst, io.LimitReader(body, f.maxSize+1))
	switch {
	case err == nil && written > f.maxSize:
		err = errTooLarge
	case errors.Is(err, io.ErrUnexpectedEOF):
		err = failure.New(failure.EmptyOrCorruptDownload, "fetch",
			fmt.Errorf("connection closed after %d of %d bytes: %w", written, total, err))
	}
	if err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return written, err
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return written, fmt.Errorf("closing temp file: %w", err)
	}

	if written == 0 || (total > 0 && written != total) {
		os.Remove(tmpPath)
		return written, failure.New(failure.EmptyOrCorruptDownload, "fetch",
			fmt.Errorf("received %d of %d bytes", written, total))
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return written, fmt.Errorf("renaming download: %w", err)
	}

	return written, nil
}

type progressWriter struct {
	w       io.Writer
	written int64
	total   int64
	fn      Progress
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	p.fn(p.written, p.total)
	return n, err
}
