package notification

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/chiwei-platform/config-service/internal/domain"
)

// DefaultShardCount is the number of key partitions used by NewRegistry when
// the caller passes a non-positive count.
const DefaultShardCount = 64

// Registry is a case-insensitive multimap from watch key to the set of values
// registered under it.
//
// Keys are partitioned across shards. Creating or removing a bucket and
// changing its membership happen under the owning shard's lock in a single
// step, so a register can never land in a bucket that a concurrent deregister
// is about to drop. Empty buckets are deleted immediately.
type Registry[V comparable] struct {
	shards []*shard[V]
}

type shard[V comparable] struct {
	mu      sync.Mutex
	buckets map[string]map[V]struct{}
}

func NewRegistry[V comparable](shardCount int) *Registry[V] {
	if shardCount <= 0 {
		shardCount = DefaultShardCount
	}
	r := &Registry[V]{shards: make([]*shard[V], shardCount)}
	for i := range r.shards {
		r.shards[i] = &shard[V]{buckets: make(map[string]map[V]struct{})}
	}
	return r
}

func (r *Registry[V]) shardFor(key string) *shard[V] {
	return r.shards[xxhash.Sum64String(key)%uint64(len(r.shards))]
}

// Register adds v under key. It reports false if v was already present.
func (r *Registry[V]) Register(key string, v V) bool {
	key = domain.NormalizeWatchKey(key)
	s := r.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.buckets[key]
	if !ok {
		bucket = make(map[V]struct{})
		s.buckets[key] = bucket
	}
	if _, exists := bucket[v]; exists {
		return false
	}
	bucket[v] = struct{}{}
	return true
}

// Deregister removes v from key, dropping the bucket once it is empty.
// It reports whether v was present.
func (r *Registry[V]) Deregister(key string, v V) bool {
	key = domain.NormalizeWatchKey(key)
	s := r.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.buckets[key]
	if !ok {
		return false
	}
	if _, exists := bucket[v]; !exists {
		return false
	}
	delete(bucket, v)
	if len(bucket) == 0 {
		delete(s.buckets, key)
	}
	return true
}

// Lookup returns a point-in-time copy of the values registered under key.
func (r *Registry[V]) Lookup(key string) []V {
	key = domain.NormalizeWatchKey(key)
	s := r.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.buckets[key]
	if len(bucket) == 0 {
		return nil
	}
	out := make([]V, 0, len(bucket))
	for v := range bucket {
		out = append(out, v)
	}
	return out
}

// Len returns the number of non-empty buckets.
func (r *Registry[V]) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.Lock()
		n += len(s.buckets)
		s.mu.Unlock()
	}
	return n
}
