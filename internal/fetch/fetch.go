// Package fetch retrieves whole remote payloads by URL.
package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	vterrors "github.com/Sergimayol/sqlite-virtual-url/internal/errors"
	"github.com/Sergimayol/sqlite-virtual-url/internal/storage"
)

// Fetcher returns the complete payload behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, rawURL string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) ([]byte, error) { return f(ctx, rawURL) }

// Options configures New.
type Options struct {
	// Timeout bounds a single HTTP request.
	Timeout time.Duration
	// CacheBytes is the payload cache capacity. Zero disables caching.
	CacheBytes int64
	// S3 configures s3:// URLs.
	S3 storage.S3Config
	// AllowLocal registers file:// URLs and plain paths. Without it they
	// fail as unsupported schemes.
	AllowLocal bool
}

// Mux dispatches on the URL scheme.
type Mux struct {
	schemes map[string]Fetcher
}

// NewMux returns an empty dispatcher.
func NewMux() *Mux {
	return &Mux{schemes: make(map[string]Fetcher)}
}

// Handle registers f for scheme. The empty scheme matches plain paths.
func (m *Mux) Handle(scheme string, f Fetcher) {
	m.schemes[strings.ToLower(scheme)] = f
}

// Fetch forwards to the fetcher registered for the URL's scheme.
func (m *Mux) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, vterrors.NewFetchError(vterrors.CodeFetchFailed, fmt.Sprintf("invalid url %q", rawURL), err)
	}
	f, ok := m.schemes[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, vterrors.NewFetchError(vterrors.CodeUnsupportedScheme, fmt.Sprintf("unsupported url scheme %q", u.Scheme), nil)
	}
	return f.Fetch(ctx, rawURL)
}

// New builds the default fetcher: http, https and s3, plus file URLs and
// plain paths when AllowLocal is set, behind a payload cache when
// CacheBytes is positive.
func New(opts Options) Fetcher {
	httpFetcher := NewHTTPFetcher(opts.Timeout)

	m := NewMux()
	m.Handle("http", httpFetcher)
	m.Handle("https", httpFetcher)
	m.Handle("s3", NewS3Fetcher(opts.S3))
	if opts.AllowLocal {
		m.Handle("file", FileFetcher{})
		m.Handle("", FileFetcher{})
	}

	if opts.CacheBytes <= 0 {
		return m
	}
	return NewCachingFetcher(m, NewPayloadCache(opts.CacheBytes))
}
