package cache

import (
	"container/list"
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

const (
	memoryShards = 16
	shardMask    = memoryShards - 1

	// DefaultMemoryEntries is the default total entry capacity.
	DefaultMemoryEntries = 512
)

// MemoryCache is a sharded in-process LRU with per-entry expiry.
// Capacity is split evenly across shards; each shard evicts its least
// recently used entry when full.
type MemoryCache struct {
	shards   [memoryShards]*memoryShard
	perShard int
	closed   atomic.Bool

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

type memoryShard struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front is most recent
}

type memoryEntry struct {
	key       string
	data      []byte
	expiresAt time.Time
}

// MemoryStats is a snapshot of cache counters.
type MemoryStats struct {
	Entries   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// NewMemoryCache creates an LRU holding roughly maxEntries entries.
// A non-positive maxEntries selects DefaultMemoryEntries.
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryEntries
	}
	c := &MemoryCache{perShard: max(1, maxEntries/memoryShards)}
	for i := range c.shards {
		c.shards[i] = &memoryShard{
			entries: make(map[string]*list.Element),
			lru:     list.New(),
		}
	}
	return c
}

func (c *MemoryCache) shard(key string) *memoryShard {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum64()&shardMask]
}

// Get retrieves a value and marks it most recently used.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if c.closed.Load() {
		return nil, false, ErrClosed
	}
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, false, nil
	}
	e := el.Value.(*memoryEntry)
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		s.lru.Remove(el)
		delete(s.entries, key)
		c.misses.Add(1)
		return nil, false, nil
	}
	s.lru.MoveToFront(el)
	c.hits.Add(1)
	return e.data, true, nil
}

// Set stores a value. The slice is retained; callers must not modify it.
func (c *MemoryCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if c.closed.Load() {
		return ErrClosed
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[key]; ok {
		e := el.Value.(*memoryEntry)
		e.data, e.expiresAt = data, expiresAt
		s.lru.MoveToFront(el)
		return nil
	}

	for s.lru.Len() >= c.perShard {
		oldest := s.lru.Back()
		s.lru.Remove(oldest)
		delete(s.entries, oldest.Value.(*memoryEntry).key)
		c.evictions.Add(1)
	}
	s.entries[key] = s.lru.PushFront(&memoryEntry{key: key, data: data, expiresAt: expiresAt})
	return nil
}

// Delete removes a value.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.entries[key]; ok {
		s.lru.Remove(el)
		delete(s.entries, key)
	}
	return nil
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (c *MemoryCache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += s.lru.Len()
		s.mu.Unlock()
	}
	return n
}

// Stats returns a snapshot of the cache counters.
func (c *MemoryCache) Stats() MemoryStats {
	return MemoryStats{
		Entries:   c.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// Close drops every entry. Later Get and Set calls return ErrClosed.
func (c *MemoryCache) Close() error {
	c.closed.Store(true)
	for _, s := range c.shards {
		s.mu.Lock()
		s.entries = make(map[string]*list.Element)
		s.lru.Init()
		s.mu.Unlock()
	}
	return nil
}

var _ Cache = (*MemoryCache)(nil)
