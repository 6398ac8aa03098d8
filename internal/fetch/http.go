package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"

	vterrors "github.com/Sergimayol/sqlite-virtual-url/internal/errors"
)

// HTTPFetcher downloads payloads with GET. Server errors are retried with
// exponential backoff; client errors are not.
type HTTPFetcher struct {
	client     *http.Client
	maxRetries int
	backoff    time.Duration
}

// NewHTTPFetcher returns a fetcher whose requests time out after timeout.
// A zero timeout means 30 seconds.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{
		client:     &http.Client{Timeout: timeout},
		maxRetries: 3,
		backoff:    100 * time.Millisecond,
	}
}

// statusError is a non-2xx response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.code, http.StatusText(e.code))
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	requestID := uuid.New().String()

	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, vterrors.NewFetchError(vterrors.CodeFetchFailed, "fetch cancelled", err)
		}

		data, err := f.get(ctx, rawURL, requestID)
		if err == nil {
			return data, nil
		}
		lastErr = err

		var se *statusError
		if errors.As(err, &se) && se.code < 500 {
			return nil, vterrors.NewFetchError(vterrors.CodeFetchFailed, fmt.Sprintf("GET %s", rawURL), err).
				WithDetails(map[string]interface{}{"status": se.code, "request_id": requestID})
		}

		if attempt < f.maxRetries {
			log.Printf("fetch: GET %s failed (attempt %d, request %s): %v", rawURL, attempt+1, requestID, err)
			delay := time.Duration(math.Pow(2, float64(attempt))) * f.backoff
			select {
			case <-ctx.Done():
				return nil, vterrors.NewFetchError(vterrors.CodeFetchFailed, "fetch cancelled", ctx.Err())
			case <-time.After(delay):
			}
		}
	}
	return nil, vterrors.NewFetchError(vterrors.CodeFetchFailed, fmt.Sprintf("GET %s", rawURL), lastErr).
		WithDetails(map[string]interface{}{"request_id": requestID})
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL, requestID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Request-ID", requestID)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &statusError{code: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}
