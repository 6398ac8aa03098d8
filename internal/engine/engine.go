// Package engine wires a configuration into a host SQLite database whose
// connections load the url and httpfs virtual table modules.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/Sergimayol/sqlite-virtual-url/internal/catalog"
	"github.com/Sergimayol/sqlite-virtual-url/internal/config"
	"github.com/Sergimayol/sqlite-virtual-url/internal/fetch"
	"github.com/Sergimayol/sqlite-virtual-url/internal/observability"
	"github.com/Sergimayol/sqlite-virtual-url/internal/storage"
	"github.com/Sergimayol/sqlite-virtual-url/internal/vtab"
)

// StatsWindow is how long predicate and scan stats are kept.
const StatsWindow = time.Hour

var driverSeq atomic.Int64

// Result is the outcome of one statement.
type Result struct {
	Columns      []string      `json:"columns"`
	Rows         [][]any       `json:"rows"`
	RowsAffected int64         `json:"rows_affected"`
	Elapsed      time.Duration `json:"-"`
}

// Engine owns the host database and the stores behind its virtual tables.
type Engine struct {
	db      *sql.DB
	stores  *vtab.Stores
	fetcher fetch.Fetcher
	stats   *observability.QueryStats
}

// New builds the fetcher, the store set and the host database described by
// cfg. cfg must already be resolved.
func New(ctx context.Context, cfg *config.Config) (*Engine, error) {
	mode, err := cfg.StorageMode()
	if err != nil {
		return nil, err
	}

	objects, err := newObjectStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	stores := vtab.NewStores(catalog.Options{
		SQLitePath: cfg.Storage.SQLitePath,
		BatchSize:  cfg.Storage.BatchSize,
		Objects:    objects,
		Prefix:     cfg.Storage.Object.Prefix,
	})

	fetcher := NewFetcher(cfg)
	sampleRows := SampleRows(cfg)
	stats := observability.NewQueryStats(StatsWindow)

	driver := fmt.Sprintf("sqlite3_urlvtab_%d", driverSeq.Add(1))
	if err := vtab.Register(driver, vtab.Config{
		Stores:      stores,
		Fetcher:     fetcher,
		SampleRows:  sampleRows,
		DefaultMode: mode,
		Stats:       stats,
	}); err != nil {
		stores.Close()
		return nil, err
	}

	dsn := cfg.HostDB
	if dsn == "" {
		dsn = "file::memory:"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("engine: open host database: %w", err)
	}
	// Virtual tables live per connection, and an in-memory host is private
	// to its connection.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		stores.Close()
		return nil, fmt.Errorf("engine: open host database: %w", err)
	}
	log.Printf("engine: host database %s ready (default storage %s)", dsn, mode)

	return &Engine{db: db, stores: stores, fetcher: fetcher, stats: stats}, nil
}

// NewFetcher builds the payload fetcher described by cfg.Fetch.
func NewFetcher(cfg *config.Config) fetch.Fetcher {
	return fetch.New(fetch.Options{
		Timeout:    cfg.Fetch.Timeout,
		CacheBytes: cfg.Fetch.CacheBytes,
		S3: storage.S3Config{
			Region:       cfg.Fetch.S3.Region,
			Endpoint:     cfg.Fetch.S3.Endpoint,
			UsePathStyle: cfg.Fetch.S3.Endpoint != "",
		},
		AllowLocal: cfg.Fetch.AllowLocal,
	})
}

// SampleRows maps the configured inference sample to the reader's
// convention, where -1 reads every row.
func SampleRows(cfg *config.Config) int {
	if cfg.Reader.SampleRows <= 0 {
		return -1
	}
	return cfg.Reader.SampleRows
}

func newObjectStorage(ctx context.Context, cfg *config.Config) (storage.ObjectStorage, error) {
	obj := cfg.Storage.Object
	switch obj.Type {
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if obj.S3.Region != "" {
			s3Cfg.Region = obj.S3.Region
		}
		if obj.S3.Endpoint != "" {
			s3Cfg.Endpoint = obj.S3.Endpoint
			s3Cfg.UsePathStyle = true
		}
		st, err := storage.NewS3Storage(ctx, obj.S3.Bucket, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("engine: object storage: %w", err)
		}
		return st, nil
	default:
		st, err := storage.NewLocalStorage(obj.Path)
		if err != nil {
			return nil, fmt.Errorf("engine: object storage: %w", err)
		}
		return st, nil
	}
}

// Stats returns the predicate and scan statistics of every virtual table.
func (e *Engine) Stats() *observability.QueryStats { return e.stats }

// PayloadCache returns the fetch cache, or nil when caching is disabled.
func (e *Engine) PayloadCache() *fetch.PayloadCache {
	if cf, ok := e.fetcher.(*fetch.CachingFetcher); ok {
		return cf.Cache()
	}
	return nil
}

// DB returns the host database.
func (e *Engine) DB() *sql.DB { return e.db }

// Execute runs one statement. Statements that produce rows are queried and
// fully read; every other statement is executed.
func (e *Engine) Execute(ctx context.Context, query string) (*Result, error) {
	start := time.Now()
	if !ReturnsRows(query) {
		res, err := e.db.ExecContext(ctx, query)
		if err != nil {
			return nil, err
		}
		n, _ := res.RowsAffected()
		return &Result{Columns: []string{}, Rows: [][]any{}, RowsAffected: n, Elapsed: time.Since(start)}, nil
	}

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	result := &Result{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			vals[i] = normalize(v)
		}
		result.Rows = append(result.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	result.Elapsed = time.Since(start)
	return result, nil
}

// ReturnsRows reports whether query starts with a keyword that yields rows.
func ReturnsRows(query string) bool {
	q := strings.TrimSpace(query)
	for strings.HasPrefix(q, "--") {
		if i := strings.IndexByte(q, '\n'); i >= 0 {
			q = strings.TrimSpace(q[i+1:])
		} else {
			return false
		}
	}
	word := q
	if i := strings.IndexFunc(q, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '(' }); i >= 0 {
		word = q[:i]
	}
	switch strings.ToUpper(word) {
	case "SELECT", "WITH", "VALUES", "PRAGMA", "EXPLAIN":
		return true
	default:
		return false
	}
}

// normalize turns text returned as bytes into a string.
func normalize(v any) any {
	if b, ok := v.([]byte); ok && utf8.Valid(b) {
		return string(b)
	}
	return v
}

// Close closes the host database and every store.
func (e *Engine) Close() error {
	dbErr := e.db.Close()
	storeErr := e.stores.Close()
	if dbErr != nil {
		return fmt.Errorf("engine: close host database: %w", dbErr)
	}
	return storeErr
}
