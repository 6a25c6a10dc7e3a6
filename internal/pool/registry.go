// Package pool implements the session pool and ramp controller of spec
// §4.5: a sharded registry holding every live Session, a ramp controller
// driving batched connects at a target rate, and an aggregator publishing
// pool-wide metrics. The registry's sharding is adapted directly from the
// gateway's internal/cache LRUCache/CacheShard (fnv32 key hash modulo shard
// count, one mutex per shard) because a 25,000-session registry under
// concurrent StartBatch/Snapshot/Close traffic has exactly the same
// contention profile a cache does — lookups and inserts dominate, and a
// single global mutex would serialize all of them.
package pool

import (
	"hash/fnv"
	"runtime"
	"sync"

	"github.com/evse-sim/simulator/internal/session"
)

// DefaultShardCount mirrors the gateway cache's default shard count, chosen
// as a multiple of typical core counts to keep shard contention low without
// fragmenting memory excessively at small pool sizes.
const DefaultShardCount = 32

type registryShard struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// Registry is the sharded, fnv-hashed session map of spec §4.5's "Session
// pool" leaf.
type Registry struct {
	shards []*registryShard
	count  uint32
}

// NewRegistry returns an empty registry with shardCount shards (<=0 selects
// DefaultShardCount).
func NewRegistry(shardCount int) *Registry {
	if shardCount <= 0 {
		shardCount = DefaultShardCount
	}
	r := &Registry{shards: make([]*registryShard, shardCount), count: uint32(shardCount)}
	for i := range r.shards {
		r.shards[i] = &registryShard{sessions: make(map[string]*session.Session)}
	}
	return r
}

func (r *Registry) shardFor(id string) *registryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return r.shards[h.Sum32()%r.count]
}

// Put inserts or replaces the session under id.
func (r *Registry) Put(id string, s *session.Session) {
	shard := r.shardFor(id)
	shard.mu.Lock()
	shard.sessions[id] = s
	shard.mu.Unlock()
}

// Get looks up a session by id.
func (r *Registry) Get(id string) (*session.Session, bool) {
	shard := r.shardFor(id)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	s, ok := shard.sessions[id]
	return s, ok
}

// Delete removes a session by id.
func (r *Registry) Delete(id string) {
	shard := r.shardFor(id)
	shard.mu.Lock()
	delete(shard.sessions, id)
	shard.mu.Unlock()
}

// Len returns the total number of registered sessions across all shards.
func (r *Registry) Len() int {
	total := 0
	for _, shard := range r.shards {
		shard.mu.RLock()
		total += len(shard.sessions)
		shard.mu.RUnlock()
	}
	return total
}

// Each calls fn for every session currently registered. Each shard is
// copied under its read lock and fn runs after that lock is released, so fn
// may call Put/Delete; a session added or removed during the walk may or may
// not be visited.
func (r *Registry) Each(fn func(id string, s *session.Session)) {
	for _, shard := range r.shards {
		shard.mu.RLock()
		snapshot := make(map[string]*session.Session, len(shard.sessions))
		for k, v := range shard.sessions {
			snapshot[k] = v
		}
		shard.mu.RUnlock()
		for id, s := range snapshot {
			fn(id, s)
		}
	}
}

// IDs returns a snapshot of every registered session id.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, r.Len())
	r.Each(func(id string, _ *session.Session) { ids = append(ids, id) })
	return ids
}

// NewDefaultRegistry sizes the shard count from GOMAXPROCS, mirroring the
// cache's CacheConfig.ShardCount default derivation, so a large pod gets
// proportionally less shard contention than DefaultShardCount alone would
// give it.
func NewDefaultRegistry() *Registry {
	n := runtime.GOMAXPROCS(0) * 4
	if n < DefaultShardCount {
		n = DefaultShardCount
	}
	return NewRegistry(n)
}
