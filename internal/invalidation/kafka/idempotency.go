package kafka

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// versionDedupe remembers the last applied version per view so replayed or
// reordered events are dropped instead of thrashing the catalog cache.
type versionDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, uint64]
}

func newVersionDedupe(size int) *versionDedupe {
	if size <= 0 {
		size = 1024
	}
	c, _ := lru.New[string, uint64](size)
	return &versionDedupe{lru: c}
}

// shouldApply reports whether v has not been seen for key yet. Versions are
// content digests, not sequence numbers, so equality is the only signal.
func (d *versionDedupe) shouldApply(key string, v uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && last == v {
		return false
	}
	d.lru.Add(key, v)
	return true
}
