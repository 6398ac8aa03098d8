package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	vterrors "github.com/Sergimayol/sqlite-virtual-url/internal/errors"
	"github.com/Sergimayol/sqlite-virtual-url/internal/storage"
)

// S3Fetcher reads s3://bucket/key URLs. One storage client is kept per bucket.
type S3Fetcher struct {
	open func(ctx context.Context, bucket string) (storage.ObjectStorage, error)

	mu      sync.Mutex
	buckets map[string]storage.ObjectStorage
}

// NewS3Fetcher returns a fetcher using the default AWS credential chain.
func NewS3Fetcher(cfg storage.S3Config) *S3Fetcher {
	return NewS3FetcherWithOpener(func(ctx context.Context, bucket string) (storage.ObjectStorage, error) {
		return storage.NewS3Storage(ctx, bucket, cfg)
	})
}

// NewS3FetcherWithOpener returns a fetcher that obtains the storage of each
// bucket from open.
func NewS3FetcherWithOpener(open func(ctx context.Context, bucket string) (storage.ObjectStorage, error)) *S3Fetcher {
	return &S3Fetcher{open: open, buckets: make(map[string]storage.ObjectStorage)}
}

func (f *S3Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return nil, err
	}
	store, err := f.bucket(ctx, bucket)
	if err != nil {
		return nil, vterrors.NewFetchError(vterrors.CodeFetchFailed, "failed to open bucket "+bucket, err)
	}
	data, err := store.Get(ctx, key)
	if err != nil {
		return nil, vterrors.NewFetchError(vterrors.CodeFetchFailed, fmt.Sprintf("GET %s", rawURL), err)
	}
	return data, nil
}

func (f *S3Fetcher) bucket(ctx context.Context, name string) (storage.ObjectStorage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.buckets[name]; ok {
		return s, nil
	}
	s, err := f.open(ctx, name)
	if err != nil {
		return nil, err
	}
	f.buckets[name] = s
	return s, nil
}

func parseS3URL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil || !strings.EqualFold(u.Scheme, "s3") {
		return "", "", vterrors.NewFetchError(vterrors.CodeUnsupportedScheme, fmt.Sprintf("not an s3 url: %q", rawURL), err)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", vterrors.NewFetchError(vterrors.CodeFetchFailed, fmt.Sprintf("s3 url %q needs a bucket and a key", rawURL), nil)
	}
	return u.Host, key, nil
}
