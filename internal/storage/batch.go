package storage

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// BatchGetter reads many objects in parallel with bounded concurrency.
type BatchGetter struct {
	storage     ObjectStorage
	concurrency int
}

// NewBatchGetter creates a new batch getter. A concurrency below one is
// treated as one.
func NewBatchGetter(storage ObjectStorage, concurrency int) *BatchGetter {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchGetter{storage: storage, concurrency: concurrency}
}

// GetAll returns the contents of objectPaths in the same order. The first
// failure cancels the remaining reads and is returned.
func (b *BatchGetter) GetAll(ctx context.Context, objectPaths []string) ([][]byte, error) {
	results := make([][]byte, len(objectPaths))
	if len(objectPaths) == 0 {
		return results, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := semaphore.NewWeighted(int64(b.concurrency))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for i, path := range objectPaths {
		if err := sem.Acquire(ctx, 1); err != nil {
			fail(fmt.Errorf("semaphore acquire failed: %w", err))
			break
		}

		wg.Add(1)
		go func(i int, path string) {
			defer sem.Release(1)
			defer wg.Done()

			data, err := b.storage.Get(ctx, path)
			if err != nil {
				fail(fmt.Errorf("%s: %w", path, err))
				return
			}
			results[i] = data
		}(i, path)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
