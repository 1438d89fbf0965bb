package imagefetch

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheKey is the (session_id, url) pair both caches are keyed by.
type cacheKey struct {
	sessionID string
	url       string
}

// byteLRU bounds entries by both count and total byte size: inserting
// beyond either limit evicts least-recently-used entries until back
// within bounds. golang-lru/v2 only enforces the entry-count bound on
// its own, so a running byte total plus an eviction sweep after each Add
// layers the byte bound on top.
type byteLRU struct {
	mu        sync.Mutex
	cache     *lru.Cache[cacheKey, []byte]
	maxBytes  int64
	curBytes  int64
	sizeByKey map[cacheKey]int64
}

func newByteLRU(maxEntries int, maxBytes int64) *byteLRU {
	b := &byteLRU{maxBytes: maxBytes, sizeByKey: make(map[cacheKey]int64)}
	cache, err := lru.NewWithEvict[cacheKey, []byte](maxEntries, b.onEvict)
	if err != nil {
		cache, _ = lru.New[cacheKey, []byte](256)
	}
	b.cache = cache
	return b
}

func (b *byteLRU) onEvict(key cacheKey, _ []byte) {
	b.curBytes -= b.sizeByKey[key]
	delete(b.sizeByKey, key)
}

func (b *byteLRU) Get(key cacheKey) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cache.Get(key)
}

func (b *byteLRU) Add(key cacheKey, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.sizeByKey[key]; ok {
		b.curBytes -= old
	}
	b.sizeByKey[key] = int64(len(data))
	b.curBytes += int64(len(data))
	b.cache.Add(key, data)

	for b.curBytes > b.maxBytes {
		oldestKey, _, ok := b.cache.RemoveOldest()
		if !ok {
			break
		}
		_ = oldestKey
	}
}

// mimeLRU is the parallel, entries-only cache for content types.
type mimeLRU struct {
	mu    sync.Mutex
	cache *lru.Cache[cacheKey, string]
}

func newMimeLRU(maxEntries int) *mimeLRU {
	cache, err := lru.New[cacheKey, string](maxEntries)
	if err != nil {
		cache, _ = lru.New[cacheKey, string](256)
	}
	return &mimeLRU{cache: cache}
}

func (m *mimeLRU) Get(key cacheKey) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Get(key)
}

func (m *mimeLRU) Add(key cacheKey, mime string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Add(key, mime)
}
