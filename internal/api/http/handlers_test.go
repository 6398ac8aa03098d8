package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sergimayol/sqlite-virtual-url/internal/engine"
	vterrors "github.com/Sergimayol/sqlite-virtual-url/internal/errors"
	"github.com/Sergimayol/sqlite-virtual-url/internal/fetch"
	"github.com/Sergimayol/sqlite-virtual-url/internal/observability"
)

type fakeExecutor struct {
	result *engine.Result
	err    error
	seen   []string
}

func (f *fakeExecutor) Execute(ctx context.Context, query string) (*engine.Result, error) {
	f.seen = append(f.seen, query)
	return f.result, f.err
}

func serve(h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	DefaultMiddleware()(h).ServeHTTP(rec, req)
	return rec
}

func TestQueryHandler_OK(t *testing.T) {
	exec := &fakeExecutor{result: &engine.Result{
		Columns: []string{"id", "name"},
		Rows:    [][]any{{int64(1), "alice"}},
		Elapsed: 3 * time.Millisecond,
	}}

	rec := serve(NewQueryHandler(exec), http.MethodPost, "/v1/query", `{"sql":"SELECT id, name FROM t"}`,
		map[string]string{"X-Request-ID": "req-1"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, []string{"SELECT id, name FROM t"}, exec.seen)

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"id", "name"}, resp.Columns)
	assert.Equal(t, [][]any{{float64(1), "alice"}}, resp.Rows)
	assert.Equal(t, 1, resp.Stats.RowsReturned)
	assert.Equal(t, int64(3), resp.Stats.ExecutionTimeMs)
	assert.Equal(t, "req-1", resp.RequestID)
}

func TestQueryHandler_Rejections(t *testing.T) {
	exec := &fakeExecutor{result: &engine.Result{}}
	h := NewQueryHandler(exec)

	rec := serve(h, http.MethodGet, "/v1/query", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(h, http.MethodPost, "/v1/query", "{not json", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodPost, "/v1/query", `{"sql":"   "}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sql is required", resp.Error)
	assert.NotEmpty(t, resp.RequestID, "a request id is generated when none is sent")
	assert.Empty(t, exec.seen)
}

func TestQueryHandler_ErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{vterrors.NewFetchError(vterrors.CodeFetchFailed, "upstream 503", nil), http.StatusBadGateway, vterrors.CodeFetchFailed},
		{vterrors.NewFetchError(vterrors.CodeUnsupportedScheme, `unsupported url scheme "file"`, nil), http.StatusBadGateway, vterrors.CodeUnsupportedScheme},
		{vterrors.NewStorageError(vterrors.CodeLoadFailed, "disk", nil), http.StatusInternalServerError, vterrors.CodeLoadFailed},
		{vterrors.NewQueryError(vterrors.CodeMalformedIndex, "bad"), http.StatusBadRequest, vterrors.CodeMalformedIndex},
		{errors.New("no such table: t"), http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		rec := serve(NewQueryHandler(&fakeExecutor{err: tt.err}), http.MethodPost, "/v1/query", `{"sql":"SELECT 1"}`, nil)
		assert.Equal(t, tt.status, rec.Code, tt.err.Error())

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, tt.code, resp.Code)
	}
}

func TestQueryHandler_DefaultFetcherRefusesLocalFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret.csv")
	require.NoError(t, os.WriteFile(path, []byte("token\nhunter2\n"), 0600))

	fetcher := fetch.New(fetch.Options{Timeout: time.Second})
	exec := executorFunc(func(ctx context.Context, query string) (*engine.Result, error) {
		if _, err := fetcher.Fetch(ctx, query); err != nil {
			return nil, err
		}
		return &engine.Result{Columns: []string{"ok"}, Rows: [][]any{{int64(1)}}}, nil
	})

	for _, u := range []string{path, "file://" + path} {
		body, err := json.Marshal(QueryRequest{SQL: u})
		require.NoError(t, err)
		rec := serve(NewQueryHandler(exec), http.MethodPost, "/v1/query", string(body), nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code, u)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, vterrors.CodeUnsupportedScheme, resp.Code, u)
		assert.NotContains(t, rec.Body.String(), "hunter2")
	}
}

type executorFunc func(ctx context.Context, query string) (*engine.Result, error)

func (f executorFunc) Execute(ctx context.Context, query string) (*engine.Result, error) {
	return f(ctx, query)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") })
	rec := serve(h, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatsHandler(t *testing.T) {
	stats := observability.NewQueryStats(time.Hour)
	stats.RecordPredicate("url.t", "id", "=")
	stats.RecordPredicate("url.t", "id", "=")
	stats.RecordPredicate("url.t", "name", "!=")
	stats.RecordScan("url.t", 10, 2, false)

	cache := fetch.NewPayloadCache(1024)
	cache.Put("https://x.test/a.csv", []byte("a,b\n"))
	cache.Get("https://x.test/a.csv")
	cache.Get("https://x.test/missing.csv")

	h := NewStatsHandler(stats, cache)
	rec := serve(h, http.MethodGet, "/v1/stats?top=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Predicates, 1)
	assert.Equal(t, "id", resp.Predicates[0].Column)
	assert.Equal(t, int64(2), resp.Predicates[0].Frequency)
	require.Len(t, resp.Scans, 1)
	assert.Equal(t, int64(10), resp.Scans[0].RowsScanned)
	require.NotNil(t, resp.FetchCache)
	assert.Equal(t, 1, resp.FetchCache.Entries)
	assert.Equal(t, int64(1), resp.FetchCache.Hits)
	assert.Equal(t, int64(1), resp.FetchCache.Misses)

	rec = serve(NewStatsHandler(stats, nil), http.MethodGet, "/v1/stats?top=-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(NewStatsHandler(stats, nil), http.MethodPost, "/v1/stats", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
