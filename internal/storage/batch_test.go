package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
)

func TestBatchGetter_PreservesOrder(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()

	var paths []string
	for i := 0; i < 10; i++ {
		p := fmt.Sprintf("batch/%05d", i)
		if err := storage.Put(ctx, p, []byte(fmt.Sprintf("payload-%d", i))); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		paths = append(paths, p)
	}

	got, err := NewBatchGetter(storage, 3).GetAll(ctx, paths)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(got) != len(paths) {
		t.Fatalf("expected %d results, got %d", len(paths), len(got))
	}
	for i, data := range got {
		if want := fmt.Sprintf("payload-%d", i); string(data) != want {
			t.Errorf("result %d = %q, want %q", i, data, want)
		}
	}
}

func TestBatchGetter_Empty(t *testing.T) {
	storage, _ := NewLocalStorage(t.TempDir())
	got, err := NewBatchGetter(storage, 0).GetAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %d", len(got))
	}
}

func TestBatchGetter_MissingObject(t *testing.T) {
	storage, _ := NewLocalStorage(t.TempDir())
	ctx := context.Background()
	if err := storage.Put(ctx, "present", []byte("x")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	_, err := NewBatchGetter(storage, 2).GetAll(ctx, []string{"present", "absent"})
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

// countingStorage records the peak number of concurrent Get calls.
type countingStorage struct {
	ObjectStorage
	active, peak atomic.Int32
}

func (c *countingStorage) Get(ctx context.Context, objectPath string) ([]byte, error) {
	n := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return c.ObjectStorage.Get(ctx, objectPath)
}

func TestBatchGetter_BoundsConcurrency(t *testing.T) {
	local, _ := NewLocalStorage(t.TempDir())
	ctx := context.Background()

	var paths []string
	for i := 0; i < 20; i++ {
		p := fmt.Sprintf("c/%d", i)
		if err := local.Put(ctx, p, []byte("x")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		paths = append(paths, p)
	}

	counting := &countingStorage{ObjectStorage: local}
	if _, err := NewBatchGetter(counting, 2).GetAll(ctx, paths); err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if peak := counting.peak.Load(); peak > 2 {
		t.Errorf("peak concurrency %d exceeds limit 2", peak)
	}
}
