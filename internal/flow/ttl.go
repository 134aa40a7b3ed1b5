package flow

import (
	"sync"
	"time"
)

const defaultTTLCapacity = 10_000

var timeNow = time.Now

func SetTimeNowFn(f func() time.Time) {
	timeNow = f
}

func RestoreTimeNow() {
	timeNow = time.Now
}

// TTL is a bounded in-process cache with per-entry expiry. Expired entries are dropped
// lazily on Get and swept when a Set finds the cache full.
type TTL[K comparable, V any] struct {
	mu       sync.RWMutex
	data     map[K]entry[V]
	capacity int
}

type entry[V any] struct {
	val V
	exp time.Time
}

// NewTTL returns a cache holding at most capacity entries; capacity <= 0 picks a default.
func NewTTL[K comparable, V any](capacity int) *TTL[K, V] {
	if capacity <= 0 {
		capacity = defaultTTLCapacity
	}
	return &TTL[K, V]{data: make(map[K]entry[V]), capacity: capacity}
}

// Get returns the value and true if found and not expired; otherwise zero value and false.
func (t *TTL[K, V]) Get(k K) (V, bool) {
	t.mu.RLock()
	e, ok := t.data[k]
	t.mu.RUnlock()
	if ok && !timeNow().After(e.exp) {
		return e.val, true
	}
	if ok {
		t.mu.Lock()
		if cur, still := t.data[k]; still && cur.exp.Equal(e.exp) {
			delete(t.data, k)
		}
		t.mu.Unlock()
	}
	var zero V
	return zero, false
}

func (t *TTL[K, V]) Set(k K, v V, ttl time.Duration) {
	now := timeNow()
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.data[k]; !exists && len(t.data) >= t.capacity {
		t.sweep(now)
	}
	t.data[k] = entry[V]{val: v, exp: now.Add(ttl)}
}

// sweep drops expired entries, then arbitrary ones until there is room for one more.
func (t *TTL[K, V]) sweep(now time.Time) {
	for k, e := range t.data {
		if now.After(e.exp) {
			delete(t.data, k)
		}
	}
	for k := range t.data {
		if len(t.data) < t.capacity {
			return
		}
		delete(t.data, k)
	}
}

func (t *TTL[K, V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.data)
}
