package intention

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func testEntry(fp Fingerprint) *CacheEntry {
	return &CacheEntry{
		Response: &ValidatedResponse{
			Fingerprint: fp,
			Provider:    "p",
			Template:    "t",
			Raw:         []byte(`{"ok":true}`),
			Fields:      map[string]any{"ok": true},
		},
		Version: 1,
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	fp := Fingerprint("p:t@1:abc")

	if _, found := store.Get(ctx, fp); found {
		t.Fatal("empty store reported a hit")
	}

	store.Put(ctx, fp, testEntry(fp), time.Minute)

	entry, found := store.Get(ctx, fp)
	if !found {
		t.Fatal("expected hit after Put")
	}
	if entry.Fingerprint != fp {
		t.Errorf("Fingerprint = %s, want %s", entry.Fingerprint, fp)
	}
	if entry.Response.Provider != "p" {
		t.Errorf("Response.Provider = %s, want p", entry.Response.Provider)
	}
	if entry.ExpiresAt.Before(time.Now()) {
		t.Error("fresh entry already expired")
	}
}

func TestMemoryStoreLazyExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	fp := Fingerprint("p:t@1:exp")

	store.Put(ctx, fp, testEntry(fp), 10*time.Millisecond)

	if _, found := store.Get(ctx, fp); !found {
		t.Fatal("entry should be fresh immediately after Put")
	}

	time.Sleep(20 * time.Millisecond)

	if _, found := store.Get(ctx, fp); found {
		t.Error("expired entry returned as hit")
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d after lazy eviction, want 0", store.Len())
	}
}

func TestMemoryStoreLRUEviction(t *testing.T) {
	ctx := context.Background()
	// 32 entries over 16 shards gives each shard room for 2.
	store := NewMemoryStore(WithMaxEntries(32))

	// Find three fingerprints that land on the same shard.
	target := store.getShard(Fingerprint("seed"))
	var fps []Fingerprint
	for i := 0; len(fps) < 3; i++ {
		fp := Fingerprint(fmt.Sprintf("p:t@1:%d", i))
		if store.getShard(fp) == target {
			fps = append(fps, fp)
		}
	}
	a, b, c := fps[0], fps[1], fps[2]

	store.Put(ctx, a, testEntry(a), time.Minute)
	store.Put(ctx, b, testEntry(b), time.Minute)

	// Touch a so b becomes the least recently used.
	if _, found := store.Get(ctx, a); !found {
		t.Fatal("expected hit for a")
	}

	store.Put(ctx, c, testEntry(c), time.Minute)

	if _, found := store.Get(ctx, a); !found {
		t.Error("recently used entry was evicted")
	}
	if _, found := store.Get(ctx, b); found {
		t.Error("least recently used entry survived eviction")
	}
	if _, found := store.Get(ctx, c); !found {
		t.Error("newest entry missing")
	}
}

func TestMemoryStoreInvalidate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	fp := Fingerprint("p:t@1:inv")

	store.Put(ctx, fp, testEntry(fp), time.Minute)
	store.Invalidate(ctx, fp)

	if _, found := store.Get(ctx, fp); found {
		t.Error("invalidated entry returned as hit")
	}
}

func TestMemoryStoreInvalidatePrefix(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	keep := Fingerprint("other:t@1:x")
	doomed := []Fingerprint{
		Fingerprint("perplexity:summary@1.0.0:a"),
		Fingerprint("perplexity:summary@1.0.0:b"),
		Fingerprint("perplexity:other@2.0.0:c"),
	}
	store.Put(ctx, keep, testEntry(keep), time.Minute)
	for _, fp := range doomed {
		store.Put(ctx, fp, testEntry(fp), time.Minute)
	}

	store.InvalidatePrefix(ctx, ProviderPrefix("perplexity"))

	for _, fp := range doomed {
		if _, found := store.Get(ctx, fp); found {
			t.Errorf("entry %s survived prefix invalidation", fp)
		}
	}
	if _, found := store.Get(ctx, keep); !found {
		t.Error("entry outside the prefix was removed")
	}
}

func TestMemoryStoreClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i := 0; i < 20; i++ {
		fp := Fingerprint(fmt.Sprintf("p:t@1:%d", i))
		store.Put(ctx, fp, testEntry(fp), time.Minute)
	}
	if store.Len() != 20 {
		t.Fatalf("Len() = %d, want 20", store.Len())
	}

	store.Clear(ctx)

	if store.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", store.Len())
	}
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(WithMaxEntries(256))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				fp := Fingerprint(fmt.Sprintf("p:t@1:%d-%d", g, i))
				store.Put(ctx, fp, testEntry(fp), time.Minute)
				store.Get(ctx, fp)
				if i%10 == 0 {
					store.Invalidate(ctx, fp)
				}
			}
		}(g)
	}
	wg.Wait()
}
