package resolver

import (
	"sync"
	"time"

	"github.com/lucasrcezimbra/missas/entities"
)

const DefaultPendingTTL = 30 * time.Minute

// PendingStore holds candidate lists awaiting an operator's choice, keyed
// by group. Entries expire after the TTL; an expired entry reads as absent,
// never as "apply candidate zero".
type PendingStore struct {
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
	items map[entities.GroupKey]pendingEntry
}

type pendingEntry struct {
	candidates []entities.Candidate
	expiresAt  time.Time
}

type PendingOption func(*PendingStore)

// WithNowFunc lets tests control expiry deterministically.
func WithNowFunc(now func() time.Time) PendingOption {
	return func(p *PendingStore) {
		p.now = now
	}
}

func NewPendingStore(ttl time.Duration, opts ...PendingOption) *PendingStore {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}

	ans := PendingStore{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[entities.GroupKey]pendingEntry),
	}

	for _, opt := range opts {
		opt(&ans)
	}

	return &ans
}

func (p *PendingStore) Put(key entities.GroupKey, candidates []entities.Candidate) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.items[key] = pendingEntry{
		candidates: candidates,
		expiresAt:  p.now().Add(p.ttl),
	}
}

func (p *PendingStore) Get(key entities.GroupKey) ([]entities.Candidate, bool) {
	p.mu.RLock()
	entry, ok := p.items[key]
	p.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if p.now().After(entry.expiresAt) {
		p.mu.Lock()
		delete(p.items, key)
		p.mu.Unlock()

		return nil, false
	}

	return entry.candidates, true
}

func (p *PendingStore) Delete(key entities.GroupKey) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.items, key)
}

// Keys returns the group keys with a live pending selection.
func (p *PendingStore) Keys() []entities.GroupKey {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ans := make([]entities.GroupKey, 0, len(p.items))

	for key, entry := range p.items {
		if p.now().After(entry.expiresAt) {
			continue
		}

		ans = append(ans, key)
	}

	return ans
}
