// Package lease provides in-process, expiring locks keyed by an identifier.
// The orchestrator holds one per source for the duration of a fetch.
package lease

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Lease struct {
	Token     string
	ExpiresAt time.Time
}

type Table struct {
	mu     sync.Mutex
	leases map[int64]Lease
	now    func() time.Time
	stop   chan struct{}
	once   sync.Once
}

// New starts a table with a background sweep of expired leases every
// interval. Call Stop when done.
func New(interval time.Duration) *Table {
	t := &Table{
		leases: make(map[int64]Lease),
		now:    time.Now,
		stop:   make(chan struct{}),
	}
	if interval > 0 {
		go t.cleanupLoop(interval)
	}
	return t
}

// Acquire takes the lease for key if it is free or expired. The returned
// token must be passed to Release.
func (t *Table) Acquire(key int64, ttl time.Duration) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if l, held := t.leases[key]; held && t.now().Before(l.ExpiresAt) {
		return "", false
	}
	token := uuid.NewString()
	t.leases[key] = Lease{Token: token, ExpiresAt: t.now().Add(ttl)}
	return token, true
}

// Release frees key if token still owns it. A lease that expired and was
// taken by someone else is left alone.
func (t *Table) Release(key int64, token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, held := t.leases[key]
	if !held || l.Token != token {
		return false
	}
	delete(t.leases, key)
	return true
}

// Renew pushes the expiry of key to now+ttl if token still owns it.
func (t *Table) Renew(key int64, token string, ttl time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, held := t.leases[key]
	if !held || l.Token != token {
		return false
	}
	l.ExpiresAt = t.now().Add(ttl)
	t.leases[key] = l
	return true
}

// Held reports whether key currently has a live lease.
func (t *Table) Held(key int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, held := t.leases[key]
	return held && t.now().Before(l.ExpiresAt)
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.leases)
}

func (t *Table) Stop() {
	t.once.Do(func() { close(t.stop) })
}

func (t *Table) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.cleanup()
		case <-t.stop:
			return
		}
	}
}

func (t *Table) cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for key, l := range t.leases {
		if !now.Before(l.ExpiresAt) {
			delete(t.leases, key)
		}
	}
}
