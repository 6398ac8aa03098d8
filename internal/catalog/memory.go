package catalog

import (
	"context"
	"fmt"
	"sync"

	vterrors "github.com/Sergimayol/sqlite-virtual-url/internal/errors"
	"github.com/Sergimayol/sqlite-virtual-url/pkg/types"
)

type memoryEntry struct {
	meta Metadata
	rows []types.Row
}

// MemoryStore keeps tables in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[Key]memoryEntry
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[Key]memoryEntry)}
}

func (s *MemoryStore) Exists(ctx context.Context, key Key) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tables[key]
	return ok, nil
}

func (s *MemoryStore) Save(ctx context.Context, key Key, meta Metadata, rows []types.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[key]; ok {
		return vterrors.NewStorageError(vterrors.CodePersistFailed, fmt.Sprintf("table %s is already stored", key), nil)
	}
	s.tables[key] = memoryEntry{meta: meta, rows: cloneRows(rows)}
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, key Key) (Metadata, []types.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.tables[key]
	if !ok {
		return Metadata{}, nil, vterrors.NewStorageError(vterrors.CodeLoadFailed, fmt.Sprintf("table %s is not stored", key), nil)
	}
	return e.meta, cloneRows(e.rows), nil
}

func (s *MemoryStore) Delete(ctx context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, key)
	return nil
}

func cloneRows(rows []types.Row) []types.Row {
	out := make([]types.Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}
