package fetch

import (
	"context"
	"net/url"
	"os"

	vterrors "github.com/Sergimayol/sqlite-virtual-url/internal/errors"
)

// FileFetcher reads file:// URLs and plain paths.
type FileFetcher struct{}

func (FileFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, vterrors.NewFetchError(vterrors.CodeFetchFailed, "fetch cancelled", err)
	}
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Scheme == "file" {
		path = u.Path
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, vterrors.NewFetchError(vterrors.CodeFetchFailed, "read "+path, err)
	}
	return data, nil
}
