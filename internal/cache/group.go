package cache

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Group serializes work per cache key. Concurrent Do calls for a key share
// one execution, and Do never runs while Lock holds the same key.
type Group struct {
	flight singleflight.Group

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewGroup returns an empty Group.
func NewGroup() *Group {
	return &Group{locks: make(map[string]*keyLock)}
}

// Do runs fn under the key lock, sharing the result with concurrent callers.
func (g *Group) Do(key string, fn func() (any, error)) (any, error) {
	v, err, _ := g.flight.Do(key, func() (any, error) {
		unlock := g.Lock(key)
		defer unlock()
		return fn()
	})
	return v, err
}

// Lock acquires the lock for key and returns its release function.
func (g *Group) Lock(key string) func() {
	g.mu.Lock()
	l, ok := g.locks[key]
	if !ok {
		l = &keyLock{}
		g.locks[key] = l
	}
	l.refs++
	g.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		g.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(g.locks, key)
		}
		g.mu.Unlock()
	}
}

// Held returns the number of keys currently locked or waited on.
func (g *Group) Held() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.locks)
}
