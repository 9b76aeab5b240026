// Package deduper guards descriptor groups: it remembers which group keys
// have already been handled in a run and serializes concurrent work on the
// same key.
package deduper

import (
	"context"
	"hash/fnv"
	"sync"
)

type Deduper interface {
	AddIfNotExists(context.Context, string) bool
}

func New() Deduper {
	return &hashmap{
		seen: make(map[uint64]struct{}),
		mux:  &sync.RWMutex{},
	}
}

type hashmap struct {
	mux  *sync.RWMutex
	seen map[uint64]struct{}
}

var _ Deduper = (*hashmap)(nil)

func (d *hashmap) AddIfNotExists(_ context.Context, key string) bool {
	h := hash(key)

	d.mux.RLock()
	if _, ok := d.seen[h]; ok {
		d.mux.RUnlock()

		return false
	}

	d.mux.RUnlock()

	d.mux.Lock()
	defer d.mux.Unlock()

	if _, ok := d.seen[h]; ok {
		return false
	}

	d.seen[h] = struct{}{}

	return true
}

// KeyedMutex serializes operations per key. The dedup store's
// check-then-create sequence races without it when two resolutions for the
// same group run concurrently.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[uint64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[uint64]*lockEntry)}
}

// Lock blocks until the key is free and returns the matching unlock func.
func (k *KeyedMutex) Lock(key string) func() {
	h := hash(key)

	k.mu.Lock()
	entry, ok := k.locks[h]
	if !ok {
		entry = &lockEntry{}
		k.locks[h] = entry
	}

	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--

		if entry.refs == 0 {
			delete(k.locks, h)
		}
		k.mu.Unlock()
	}
}

func hash(key string) uint64 {
	h := fnv.New64()
	h.Write([]byte(key))

	return h.Sum64()
}
