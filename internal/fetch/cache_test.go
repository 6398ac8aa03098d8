package fetch

import (
	"context"
	"errors"
	"testing"
)

func TestPayloadCache_HitAndMiss(t *testing.T) {
	cache := NewPayloadCache(1024)

	if _, ok := cache.Get("http://x/a.csv"); ok {
		t.Fatal("expected miss on empty cache")
	}

	cache.Put("http://x/a.csv", make([]byte, 100))
	data, ok := cache.Get("http://x/a.csv")
	if !ok || len(data) != 100 {
		t.Fatalf("expected hit with 100 bytes, got ok=%v len=%d", ok, len(data))
	}
	if cache.Len() != 1 || cache.Size() != 100 {
		t.Errorf("Len=%d Size=%d, want 1 and 100", cache.Len(), cache.Size())
	}
	if hits, misses := cache.Stats(); hits != 1 || misses != 1 {
		t.Errorf("Stats = %d hits, %d misses", hits, misses)
	}
}

func TestPayloadCache_LRUEviction(t *testing.T) {
	cache := NewPayloadCache(250)

	for _, name := range []string{"a", "b", "c"} {
		cache.Put(name, make([]byte, 100))
	}

	// "a" should have been evicted (LRU), "b" and "c" should remain
	if _, ok := cache.Get("a"); ok {
		t.Fatal("expected eviction of 'a'")
	}
	if _, ok := cache.Get("b"); !ok {
		t.Fatal("expected 'b' to be cached")
	}
	if _, ok := cache.Get("c"); !ok {
		t.Fatal("expected 'c' to be cached")
	}
	if cache.Size() != 200 {
		t.Errorf("Size = %d, want 200", cache.Size())
	}
}

func TestPayloadCache_PromotionOnGet(t *testing.T) {
	cache := NewPayloadCache(250)
	cache.Put("a", make([]byte, 100))
	cache.Put("b", make([]byte, 100))

	// Touch "a" so "b" becomes the eviction candidate
	cache.Get("a")
	cache.Put("c", make([]byte, 100))

	if _, ok := cache.Get("b"); ok {
		t.Error("expected 'b' to be evicted")
	}
	if _, ok := cache.Get("a"); !ok {
		t.Error("expected 'a' to survive")
	}
}

func TestPayloadCache_ReplaceAndInvalidate(t *testing.T) {
	cache := NewPayloadCache(1000)
	cache.Put("a", make([]byte, 100))
	cache.Put("a", make([]byte, 40))
	if cache.Size() != 40 || cache.Len() != 1 {
		t.Errorf("after replace Size=%d Len=%d", cache.Size(), cache.Len())
	}

	cache.Invalidate("a")
	if cache.Size() != 0 || cache.Len() != 0 {
		t.Errorf("after invalidate Size=%d Len=%d", cache.Size(), cache.Len())
	}

	// oversized payloads are not cached
	cache.Put("huge", make([]byte, 2000))
	if _, ok := cache.Get("huge"); ok {
		t.Error("payload larger than the cache was kept")
	}
}

func TestCachingFetcher(t *testing.T) {
	calls := 0
	next := FetcherFunc(func(ctx context.Context, rawURL string) ([]byte, error) {
		calls++
		if rawURL == "bad" {
			return nil, errors.New("boom")
		}
		return []byte("payload:" + rawURL), nil
	})
	f := NewCachingFetcher(next, NewPayloadCache(1024))

	for i := 0; i < 3; i++ {
		data, err := f.Fetch(context.Background(), "u")
		if err != nil || string(data) != "payload:u" {
			t.Fatalf("Fetch = %q, %v", data, err)
		}
	}
	if calls != 1 {
		t.Errorf("expected one upstream fetch, got %d", calls)
	}

	if _, err := f.Fetch(context.Background(), "bad"); err == nil {
		t.Fatal("expected upstream error")
	}
	if _, ok := f.Cache().Get("bad"); ok {
		t.Error("failed fetches must not be cached")
	}
}
