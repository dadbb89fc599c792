package intention

import (
	"container/list"
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"
)

// MemoryStore is the in-process Store implementation: fingerprints hash onto
// shards to keep lock contention per-shard, expiry is lazy on read, and an
// optional max entry count bounds each shard with least-recently-used
// eviction. Eviction timing is best-effort; correctness never depends on it.
type MemoryStore struct {
	shards      []*storeShard
	numShards   int
	maxPerShard int
}

type storeShard struct {
	mu    sync.Mutex
	store map[Fingerprint]*list.Element
	order *list.List
}

type storeItem struct {
	fp    Fingerprint
	entry *CacheEntry
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithMaxEntries bounds the store to approximately n entries across all
// shards, evicting in least-recently-used order under capacity pressure.
func WithMaxEntries(n int) MemoryStoreOption {
	return func(s *MemoryStore) {
		if n <= 0 {
			return
		}
		per := n / s.numShards
		if per < 1 {
			per = 1
		}
		s.maxPerShard = per
	}
}

// NewMemoryStore creates an in-process cache store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	numShards := 16
	shards := make([]*storeShard, numShards)
	for i := range shards {
		shards[i] = &storeShard{
			store: make(map[Fingerprint]*list.Element),
			order: list.New(),
		}
	}
	s := &MemoryStore{
		shards:    shards,
		numShards: numShards,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) getShard(fp Fingerprint) *storeShard {
	hash := fnv.New32a()
	hash.Write([]byte(fp))
	return s.shards[hash.Sum32()%uint32(s.numShards)]
}

// Get returns the entry for fp, treating an expired entry as a miss and
// evicting it in place.
func (s *MemoryStore) Get(_ context.Context, fp Fingerprint) (*CacheEntry, bool) {
	shard := s.getShard(fp)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	elem, exists := shard.store[fp]
	if !exists {
		return nil, false
	}

	item := elem.Value.(*storeItem)
	if time.Now().After(item.entry.ExpiresAt) {
		shard.order.Remove(elem)
		delete(shard.store, fp)
		return nil, false
	}

	shard.order.MoveToFront(elem)
	return item.entry, true
}

// Put stores an entry under fp, overwriting any existing entry and setting
// ExpiresAt from the supplied ttl.
func (s *MemoryStore) Put(_ context.Context, fp Fingerprint, entry *CacheEntry, ttl time.Duration) {
	shard := s.getShard(fp)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	now := time.Now()
	entry.Fingerprint = fp
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.ExpiresAt = now.Add(ttl)

	if elem, exists := shard.store[fp]; exists {
		elem.Value.(*storeItem).entry = entry
		shard.order.MoveToFront(elem)
		return
	}

	shard.store[fp] = shard.order.PushFront(&storeItem{fp: fp, entry: entry})

	if s.maxPerShard > 0 {
		for len(shard.store) > s.maxPerShard {
			oldest := shard.order.Back()
			if oldest == nil {
				break
			}
			shard.order.Remove(oldest)
			delete(shard.store, oldest.Value.(*storeItem).fp)
		}
	}
}

// Invalidate removes the entry for fp, if any.
func (s *MemoryStore) Invalidate(_ context.Context, fp Fingerprint) {
	shard := s.getShard(fp)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if elem, exists := shard.store[fp]; exists {
		shard.order.Remove(elem)
		delete(shard.store, fp)
	}
}

// InvalidatePrefix removes every entry whose fingerprint starts with prefix.
// Used for bulk invalidation by provider or template version.
func (s *MemoryStore) InvalidatePrefix(_ context.Context, prefix string) {
	for _, shard := range s.shards {
		shard.mu.Lock()
		for fp, elem := range shard.store {
			if strings.HasPrefix(string(fp), prefix) {
				shard.order.Remove(elem)
				delete(shard.store, fp)
			}
		}
		shard.mu.Unlock()
	}
}

// Clear removes all entries.
func (s *MemoryStore) Clear(_ context.Context) {
	for _, shard := range s.shards {
		shard.mu.Lock()
		shard.store = make(map[Fingerprint]*list.Element)
		shard.order = list.New()
		shard.mu.Unlock()
	}
}

// Len reports the current number of entries across all shards.
func (s *MemoryStore) Len() int {
	total := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		total += len(shard.store)
		shard.mu.Unlock()
	}
	return total
}
