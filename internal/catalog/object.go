package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/golang/snappy"

	vterrors "github.com/Sergimayol/sqlite-virtual-url/internal/errors"
	"github.com/Sergimayol/sqlite-virtual-url/internal/storage"
	"github.com/Sergimayol/sqlite-virtual-url/pkg/types"
)

// snapshotConcurrency bounds the parallel batch reads of a Load.
const snapshotConcurrency = 4

// ObjectStore keeps each table as a snapshot in object storage:
//
//	<prefix>/<module>/<table>/rows/000000.snappy ...
//	<prefix>/<module>/<table>/metadata.json
//
// Row batches are JSON arrays of cell texts compressed with snappy. The
// metadata object is written last and marks the snapshot complete.
type ObjectStore struct {
	objects   storage.ObjectStorage
	prefix    string
	batchSize int
}

// NewObjectStore returns a store writing under prefix.
func NewObjectStore(objects storage.ObjectStorage, prefix string, batchSize int) *ObjectStore {
	return &ObjectStore{objects: objects, prefix: prefix, batchSize: batchSizeOrDefault(batchSize)}
}

type snapshotMetadata struct {
	URL         string `json:"url"`
	Format      string `json:"format"`
	HeaderLine  string `json:"header_line"`
	ColumnTypes string `json:"column_types"`
	Rows        int    `json:"rows"`
	Batches     int    `json:"batches"`
}

func (s *ObjectStore) dir(key Key) string {
	return path.Join(s.prefix, key.Module, key.Table)
}

func (s *ObjectStore) metadataPath(key Key) string {
	return path.Join(s.dir(key), "metadata.json")
}

func (s *ObjectStore) batchPath(key Key, i int) string {
	return path.Join(s.dir(key), "rows", fmt.Sprintf("%06d.snappy", i))
}

func (s *ObjectStore) Exists(ctx context.Context, key Key) (bool, error) {
	ok, err := s.objects.Exists(ctx, s.metadataPath(key))
	if err != nil {
		return false, vterrors.NewStorageError(vterrors.CodeLoadFailed, "failed to look up snapshot", err)
	}
	return ok, nil
}

func (s *ObjectStore) Save(ctx context.Context, key Key, meta Metadata, rows []types.Row) error {
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		return vterrors.NewStorageError(vterrors.CodePersistFailed, fmt.Sprintf("table %s is already stored", key), nil)
	}

	batches := 0
	for start := 0; start < len(rows); start += s.batchSize {
		batch := rows[start:min(start+s.batchSize, len(rows))]
		payload, err := encodeBatch(batch, len(meta.ColumnTypes))
		if err != nil {
			return vterrors.NewStorageError(vterrors.CodePersistFailed, "failed to encode rows", err)
		}
		if err := s.objects.Put(ctx, s.batchPath(key, batches), payload); err != nil {
			return vterrors.NewStorageError(vterrors.CodePersistFailed, fmt.Sprintf("failed to write batch %d", batches), err)
		}
		batches++
	}

	data, err := json.Marshal(snapshotMetadata{
		URL:         meta.URL,
		Format:      meta.Format,
		HeaderLine:  meta.HeaderLine,
		ColumnTypes: EncodeColumnTypes(meta.ColumnTypes),
		Rows:        len(rows),
		Batches:     batches,
	})
	if err != nil {
		return vterrors.NewStorageError(vterrors.CodePersistFailed, "failed to encode metadata", err)
	}
	if err := s.objects.Put(ctx, s.metadataPath(key), data); err != nil {
		return vterrors.NewStorageError(vterrors.CodePersistFailed, "failed to write metadata", err)
	}
	return nil
}

func (s *ObjectStore) Load(ctx context.Context, key Key) (Metadata, []types.Row, error) {
	data, err := s.objects.Get(ctx, s.metadataPath(key))
	if err != nil {
		return Metadata{}, nil, vterrors.NewStorageError(vterrors.CodeLoadFailed, "failed to read metadata", err)
	}
	var sm snapshotMetadata
	if err := json.Unmarshal(data, &sm); err != nil {
		return Metadata{}, nil, vterrors.NewStorageError(vterrors.CodeCorruptMetadata, "metadata is not valid JSON", err)
	}
	meta := Metadata{URL: sm.URL, Format: sm.Format, HeaderLine: sm.HeaderLine}
	if meta.ColumnTypes, err = ParseColumnTypes(sm.ColumnTypes); err != nil {
		return Metadata{}, nil, err
	}

	paths := make([]string, sm.Batches)
	for i := range paths {
		paths[i] = s.batchPath(key, i)
	}
	payloads, err := storage.NewBatchGetter(s.objects, snapshotConcurrency).GetAll(ctx, paths)
	if err != nil {
		return Metadata{}, nil, vterrors.NewStorageError(vterrors.CodeLoadFailed, "failed to read rows", err)
	}

	rows := make([]types.Row, 0, sm.Rows)
	for i, payload := range payloads {
		batch, err := decodeBatch(payload, meta.ColumnTypes)
		if err != nil {
			return Metadata{}, nil, vterrors.NewStorageError(vterrors.CodeCorruptMetadata, fmt.Sprintf("batch %d", i), err)
		}
		rows = append(rows, batch...)
	}
	if len(rows) != sm.Rows {
		return Metadata{}, nil, vterrors.NewStorageError(vterrors.CodeCorruptMetadata,
			fmt.Sprintf("snapshot holds %d rows, metadata declares %d", len(rows), sm.Rows), nil)
	}
	return meta, rows, nil
}

// Delete removes the metadata first so a partially deleted snapshot is
// never reported as present.
func (s *ObjectStore) Delete(ctx context.Context, key Key) error {
	if err := s.objects.Delete(ctx, s.metadataPath(key)); err != nil {
		return vterrors.NewStorageError(vterrors.CodePersistFailed, "failed to delete metadata", err)
	}
	batches, err := s.objects.ListObjects(ctx, path.Join(s.dir(key), "rows")+"/")
	if err != nil {
		return vterrors.NewStorageError(vterrors.CodePersistFailed, "failed to list batches", err)
	}
	for _, p := range batches {
		if err := s.objects.Delete(ctx, p); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			return vterrors.NewStorageError(vterrors.CodePersistFailed, "failed to delete "+p, err)
		}
	}
	return nil
}

// encodeBatch stores each cell as its display text, NULL as JSON null.
func encodeBatch(rows []types.Row, width int) ([]byte, error) {
	cells := make([][]*string, len(rows))
	for i, row := range rows {
		cells[i] = make([]*string, width)
		for c := 0; c < width && c < len(row); c++ {
			if row[c].Value.IsNull() {
				continue
			}
			text := row[c].Value.String()
			cells[i][c] = &text
		}
	}
	raw, err := json.Marshal(cells)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

func decodeBatch(payload []byte, declared []types.DataType) ([]types.Row, error) {
	raw, err := snappy.Decode(nil, payload)
	if err != nil {
		return nil, err
	}
	var cells [][]*string
	if err := json.Unmarshal(raw, &cells); err != nil {
		return nil, err
	}
	rows := make([]types.Row, len(cells))
	for i, rc := range cells {
		if len(rc) != len(declared) {
			return nil, fmt.Errorf("row %d has %d cells, want %d", i, len(rc), len(declared))
		}
		row := make(types.Row, len(rc))
		for c, cell := range rc {
			if cell == nil {
				row[c] = types.NewTypedValue(types.NullValue())
				continue
			}
			row[c] = types.NewTypedValue(types.ValueFromText(*cell, declared[c]))
		}
		rows[i] = row
	}
	return rows, nil
}
