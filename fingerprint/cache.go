package fingerprint

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/GriffinCanCode/retrigger/event"
)

const (
	// DefaultBlockSize is the block alignment used for the incremental
	// path's rolling-hash state, matching the common bundler chunk size.
	DefaultBlockSize = 4096

	// DefaultMaxEntries bounds the cache's resident-entry count.
	DefaultMaxEntries = 8192

	// DefaultTTL bounds how long an entry survives after it was last
	// stored, independent of LRU pressure; reading an entry does not
	// extend it.
	DefaultTTL = 10 * time.Minute

	// DefaultMaxFileSize is the per-file ceiling above which fingerprinting
	// is skipped outright.
	DefaultMaxFileSize = 64 << 20 // 64 MiB
)

// entry is the cache's unit of state for one canonical path. It holds
// exactly the fields the spec's FingerprintCacheEntry names: the
// last-seen fingerprint, size, and mtime, plus the block-aligned rolling
// state and the resumable digest needed to extend it incrementally.
//
// Concurrent readers observe either the pre- or post-update value of an
// entry without ever observing a torn read: a reader that takes the
// pointer from the cache's Get (which is guarded by the LRU's internal
// mutex) always sees one complete, immutable entry value, because entries
// are replaced, never mutated in place. generation records the order in
// which entries were stored.
type entry struct {
	size       int64
	mtimeNS    int64
	fp         event.Fingerprint
	blocks     []uint64
	digest     digestState
	generation uint64
}

// cache is a capacity- and TTL-bounded map from canonical path to entry.
// It tolerates one writer and many readers per key: writers always store
// a brand new *entry rather than mutating fields of a shared one, so a
// concurrent reader's Get returns a consistent snapshot.
type cache struct {
	lru        *lru.LRU[string, *entry]
	generation uint64
}

func newCache(maxEntries int, ttl time.Duration) *cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &cache{lru: lru.NewLRU[string, *entry](maxEntries, nil, ttl)}
}

func (c *cache) get(path string) (*entry, bool) {
	return c.lru.Get(path)
}

func (c *cache) put(path string, e *entry) {
	c.generation++
	e.generation = c.generation
	c.lru.Add(path, e)
}

func (c *cache) invalidate(path string) {
	c.lru.Remove(path)
}

func (c *cache) len() int {
	return c.lru.Len()
}
