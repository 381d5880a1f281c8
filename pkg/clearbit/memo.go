package clearbit

import (
	"context"
	"strings"
	"sync"
	"time"
)

// maxMemoEntries caps the memo; a full memo drops expired entries first and
// starts over when none have expired.
const maxMemoEntries = 4096

type memoEntry struct {
	company *Company
	expires time.Time
}

// Memo reuses FindCompany results for ttl. Errors are never cached, so a
// failed lookup is retried on the next call.
type Memo struct {
	next Client
	ttl  time.Duration

	mu      sync.Mutex
	entries map[string]memoEntry
	now     func() time.Time
}

// NewMemo wraps next with a lookup memo keyed by lower-cased domain.
func NewMemo(next Client, ttl time.Duration) *Memo {
	return &Memo{
		next:    next,
		ttl:     ttl,
		entries: make(map[string]memoEntry),
		now:     time.Now,
	}
}

// FindCompany implements Client.
func (m *Memo) FindCompany(ctx context.Context, domain string) (*Company, error) {
	key := strings.ToLower(strings.TrimSpace(domain))

	m.mu.Lock()
	e, ok := m.entries[key]
	now := m.now()
	m.mu.Unlock()
	if ok && now.Before(e.expires) {
		return e.company, nil
	}

	c, err := m.next.FindCompany(ctx, domain)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) >= maxMemoEntries {
		m.evict(now)
	}
	m.entries[key] = memoEntry{company: c, expires: now.Add(m.ttl)}
	return c, nil
}

func (m *Memo) evict(now time.Time) {
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
		}
	}
	if len(m.entries) >= maxMemoEntries {
		m.entries = make(map[string]memoEntry)
	}
}
