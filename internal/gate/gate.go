// Package gate decides, per table instance, whether to fetch and parse the
// remote dataset or rebuild it from a persisted copy.
package gate

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/Sergimayol/sqlite-virtual-url/internal/catalog"
	vterrors "github.com/Sergimayol/sqlite-virtual-url/internal/errors"
	"github.com/Sergimayol/sqlite-virtual-url/internal/fetch"
	"github.com/Sergimayol/sqlite-virtual-url/internal/reader"
	"github.com/Sergimayol/sqlite-virtual-url/internal/table"
	"github.com/Sergimayol/sqlite-virtual-url/pkg/types"
)

// DefaultSampleRows is the schema discovery budget used when none is set.
const DefaultSampleRows = 1000

// Request describes one table open.
type Request struct {
	Key    catalog.Key
	URL    string
	Format reader.Format
	// Creating is true for CREATE VIRTUAL TABLE and false for a reconnect.
	Creating bool
}

// Source says where an opened table came from.
type Source int

const (
	// SourceFetched means the payload was fetched and parsed.
	SourceFetched Source = iota
	// SourceStored means the table was rebuilt from the store.
	SourceStored
)

func (s Source) String() string {
	if s == SourceStored {
		return "stored"
	}
	return "fetched"
}

// Opened is a materialized table plus how it was obtained.
type Opened struct {
	Table    *table.Table
	Metadata catalog.Metadata
	Source   Source
	// Persisted is true when this open wrote a new copy to the store.
	Persisted bool
	// BytesRead is the reader's discovery tally; zero for stored tables.
	BytesRead int64
}

// Gate materializes tables through a store and a fetcher.
type Gate struct {
	store      catalog.Store
	fetcher    fetch.Fetcher
	sampleRows int
}

// New creates a gate. A sampleRows of zero selects DefaultSampleRows; a
// negative value samples every row.
func New(store catalog.Store, fetcher fetch.Fetcher, sampleRows int) *Gate {
	if sampleRows == 0 {
		sampleRows = DefaultSampleRows
	}
	return &Gate{store: store, fetcher: fetcher, sampleRows: sampleRows}
}

// Open returns the table for req. A stored copy wins over fetching as long
// as it was built from the same URL and format. On create a copy from a
// different source is replaced; on connect it is an error. A fetched table
// is persisted only when req.Creating is set.
func (g *Gate) Open(ctx context.Context, req Request) (*Opened, error) {
	stored, err := g.store.Exists(ctx, req.Key)
	if err != nil {
		return nil, fmt.Errorf("gate: %s: %w", req.Key, err)
	}
	if stored {
		opened, err := g.reconstruct(ctx, req.Key)
		if err != nil {
			return nil, err
		}
		if sameSource(opened.Metadata, req) {
			return opened, nil
		}
		if !req.Creating {
			return nil, vterrors.NewStorageError(vterrors.CodeSourceMismatch,
				fmt.Sprintf("stored copy of %s was built from %s (%s), table declares %s (%s)",
					req.Key, opened.Metadata.URL, opened.Metadata.Format, req.URL, req.Format), nil)
		}
		log.Printf("gate: replacing stored copy of %s built from %s (%s)", req.Key, opened.Metadata.URL, opened.Metadata.Format)
		if err := g.store.Delete(ctx, req.Key); err != nil {
			return nil, fmt.Errorf("gate: replace %s: %w", req.Key, err)
		}
	}

	data, err := g.fetcher.Fetch(ctx, req.URL)
	if err != nil {
		return nil, fmt.Errorf("gate: fetch %s: %w", req.URL, err)
	}
	t, r, err := g.parse(req, data)
	if err != nil {
		if inv, ok := g.fetcher.(Invalidator); ok {
			inv.Invalidate(req.URL)
		}
		return nil, err
	}
	log.Printf("gate: fetched %s as %s: %d rows, %d columns, %d bytes", req.URL, req.Format, t.Len(), r.TotalColumns(), r.BytesRead())

	opened := &Opened{
		Table:     t,
		Metadata:  catalog.NewMetadata(req.URL, req.Format.String(), t.Schema()),
		Source:    SourceFetched,
		BytesRead: r.BytesRead(),
	}
	if !req.Creating {
		return opened, nil
	}
	if err := g.store.Save(ctx, req.Key, opened.Metadata, t.Rows()); err != nil {
		return nil, fmt.Errorf("gate: persist %s: %w", req.Key, err)
	}
	opened.Persisted = true
	log.Printf("gate: persisted %s (%d rows)", req.Key, t.Len())
	return opened, nil
}

// Invalidator is implemented by fetchers that keep payloads between calls.
// The gate drops a payload that failed to parse so a retry refetches it.
type Invalidator interface {
	Invalidate(rawURL string)
}

func (g *Gate) parse(req Request, data []byte) (*table.Table, reader.Reader, error) {
	r, err := reader.New(req.Format, data, g.sampleRows)
	if err != nil {
		return nil, nil, fmt.Errorf("gate: parse %s: %w", req.URL, err)
	}
	t, err := table.FromReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("gate: %s: %w", req.Key, err)
	}
	return t, r, nil
}

func sameSource(meta catalog.Metadata, req Request) bool {
	return meta.URL == req.URL && strings.EqualFold(meta.Format, req.Format.String())
}

func (g *Gate) reconstruct(ctx context.Context, key catalog.Key) (*Opened, error) {
	meta, rows, err := g.store.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("gate: load %s: %w", key, err)
	}
	schema, err := meta.Schema()
	if err != nil {
		return nil, fmt.Errorf("gate: load %s: %w", key, err)
	}
	markNullable(schema, rows)
	log.Printf("gate: rebuilt %s from store (%d rows)", key, len(rows))

	return &Opened{
		Table:    table.New(schema, rows),
		Metadata: meta,
		Source:   SourceStored,
	}, nil
}

// markNullable flags every column holding at least one NULL.
func markNullable(schema types.Schema, rows []types.Row) {
	for c := range schema.Fields {
		for _, row := range rows {
			if c < len(row) && row[c].Value.IsNull() {
				schema.Fields[c].Nullable = true
				break
			}
		}
	}
}

// Drop removes the persisted copy of key.
func (g *Gate) Drop(ctx context.Context, key catalog.Key) error {
	if err := g.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("gate: drop %s: %w", key, err)
	}
	log.Printf("gate: dropped %s", key)
	return nil
}
