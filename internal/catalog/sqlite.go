package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	vterrors "github.com/Sergimayol/sqlite-virtual-url/internal/errors"
	"github.com/Sergimayol/sqlite-virtual-url/pkg/types"
)

// maxVariables is SQLite's default limit of bound parameters per statement.
const maxVariables = 32766

// SQLiteStore keeps each table as a pair of SQLite tables named
// "<module>.<table>_metadata" and "<module>.<table>_data". The data table
// declares every column with the affinity of its type.
type SQLiteStore struct {
	db        *sql.DB
	batchSize int
	mu        sync.Mutex // serializes writers
}

// OpenSQLiteStore opens (or creates) the database at path.
func OpenSQLiteStore(path string, batchSize int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, vterrors.NewStorageError(vterrors.CodeLoadFailed, "failed to open database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, vterrors.NewStorageError(vterrors.CodeLoadFailed, "failed to open database", err)
	}
	return NewSQLiteStore(db, batchSize), nil
}

// NewSQLiteStore wraps an open database.
func NewSQLiteStore(db *sql.DB, batchSize int) *SQLiteStore {
	return &SQLiteStore{db: db, batchSize: batchSizeOrDefault(batchSize)}
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func metadataTable(key Key) string { return key.String() + "_metadata" }

func dataTable(key Key) string { return key.String() + "_data" }

func (s *SQLiteStore) Exists(ctx context.Context, key Key) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", metadataTable(key)).Scan(&n)
	if err != nil {
		return false, vterrors.NewStorageError(vterrors.CodeLoadFailed, "failed to look up metadata", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Save(ctx context.Context, key Key, meta Metadata, rows []types.Row) error {
	schema, err := meta.Schema()
	if err != nil {
		return err
	}
	if schema.Len() == 0 {
		return vterrors.NewStorageError(vterrors.CodePersistFailed, fmt.Sprintf("table %s has no columns", key), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return vterrors.NewStorageError(vterrors.CodePersistFailed, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, createDataSQL(key, schema)); err != nil {
		return vterrors.NewStorageError(vterrors.CodePersistFailed, "failed to create data table", err)
	}
	if err := s.insertRows(ctx, tx, key, schema, rows); err != nil {
		return err
	}

	createMeta := fmt.Sprintf("CREATE TABLE %s (url TEXT, format TEXT, headers TEXT, column_types TEXT)", quoteIdent(metadataTable(key)))
	if _, err := tx.ExecContext(ctx, createMeta); err != nil {
		return vterrors.NewStorageError(vterrors.CodePersistFailed, "failed to create metadata table", err)
	}
	insertMeta := fmt.Sprintf("INSERT INTO %s (url, format, headers, column_types) VALUES (?, ?, ?, ?)", quoteIdent(metadataTable(key)))
	if _, err := tx.ExecContext(ctx, insertMeta, meta.URL, meta.Format, meta.HeaderLine, EncodeColumnTypes(meta.ColumnTypes)); err != nil {
		return vterrors.NewStorageError(vterrors.CodePersistFailed, "failed to write metadata", err)
	}

	if err := tx.Commit(); err != nil {
		return vterrors.NewStorageError(vterrors.CodePersistFailed, "failed to commit", err)
	}
	return nil
}

func createDataSQL(key Key, schema types.Schema) string {
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(dataTable(key)), ColumnDefs(schema))
}

func insertSQL(key Key, schema types.Schema, n int) string {
	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?, ", schema.Len()), ", ") + ")"
	values := make([]string, n)
	for i := range values {
		values[i] = placeholders
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		quoteIdent(dataTable(key)), EncodeHeaderLine(schema.Names()), strings.Join(values, ", "))
}

// insertRows writes rows in multi-row batches. A batch never binds more
// parameters than SQLite allows.
func (s *SQLiteStore) insertRows(ctx context.Context, tx *sql.Tx, key Key, schema types.Schema, rows []types.Row) error {
	width := schema.Len()
	perStmt := min(s.batchSize, max(1, maxVariables/width))

	var full *sql.Stmt
	defer func() {
		if full != nil {
			full.Close()
		}
	}()

	args := make([]any, 0, perStmt*width)
	for start := 0; start < len(rows); start += perStmt {
		batch := rows[start:min(start+perStmt, len(rows))]

		args = args[:0]
		for _, row := range batch {
			for c := 0; c < width; c++ {
				if c < len(row) {
					args = append(args, row[c].Value.SQL())
				} else {
					args = append(args, nil)
				}
			}
		}

		var err error
		if len(batch) == perStmt {
			if full == nil {
				if full, err = tx.PrepareContext(ctx, insertSQL(key, schema, perStmt)); err != nil {
					return vterrors.NewStorageError(vterrors.CodePersistFailed, "failed to prepare insert", err)
				}
			}
			_, err = full.ExecContext(ctx, args...)
		} else {
			_, err = tx.ExecContext(ctx, insertSQL(key, schema, len(batch)), args...)
		}
		if err != nil {
			return vterrors.NewStorageError(vterrors.CodePersistFailed, fmt.Sprintf("failed to insert rows %d..%d", start, start+len(batch)-1), err)
		}
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, key Key) (Metadata, []types.Row, error) {
	var (
		meta        Metadata
		columnTypes string
	)
	query := fmt.Sprintf("SELECT url, format, headers, column_types FROM %s LIMIT 1", quoteIdent(metadataTable(key)))
	err := s.db.QueryRowContext(ctx, query).Scan(&meta.URL, &meta.Format, &meta.HeaderLine, &columnTypes)
	if err == sql.ErrNoRows {
		return Metadata{}, nil, vterrors.NewStorageError(vterrors.CodeCorruptMetadata, fmt.Sprintf("table %s has an empty metadata table", key), nil)
	}
	if err != nil {
		return Metadata{}, nil, vterrors.NewStorageError(vterrors.CodeLoadFailed, "failed to read metadata", err)
	}
	if meta.ColumnTypes, err = ParseColumnTypes(columnTypes); err != nil {
		return Metadata{}, nil, err
	}
	schema, err := meta.Schema()
	if err != nil {
		return Metadata{}, nil, err
	}

	dataRows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY rowid", quoteIdent(dataTable(key))))
	if err != nil {
		return Metadata{}, nil, vterrors.NewStorageError(vterrors.CodeLoadFailed, "failed to read rows", err)
	}
	defer dataRows.Close()

	cols, err := dataRows.Columns()
	if err != nil {
		return Metadata{}, nil, vterrors.NewStorageError(vterrors.CodeLoadFailed, "failed to read rows", err)
	}
	if len(cols) != schema.Len() {
		return Metadata{}, nil, vterrors.NewStorageError(vterrors.CodeCorruptMetadata,
			fmt.Sprintf("data table has %d columns, metadata declares %d", len(cols), schema.Len()), nil)
	}

	var rows []types.Row
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for dataRows.Next() {
		if err := dataRows.Scan(ptrs...); err != nil {
			return Metadata{}, nil, vterrors.NewStorageError(vterrors.CodeLoadFailed, fmt.Sprintf("failed to scan row %d", len(rows)), err)
		}
		row := make(types.Row, len(cols))
		for i, v := range raw {
			row[i] = types.NewTypedValue(types.ValueFromSQL(v, meta.ColumnTypes[i]))
		}
		rows = append(rows, row)
	}
	if err := dataRows.Err(); err != nil {
		return Metadata{}, nil, vterrors.NewStorageError(vterrors.CodeLoadFailed, "failed to read rows", err)
	}
	return meta, rows, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return vterrors.NewStorageError(vterrors.CodePersistFailed, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	for _, name := range []string{metadataTable(key), dataTable(key)} {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
			return vterrors.NewStorageError(vterrors.CodePersistFailed, "failed to drop "+name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return vterrors.NewStorageError(vterrors.CodePersistFailed, "failed to commit", err)
	}
	return nil
}
