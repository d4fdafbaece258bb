package ledger

import (
	"context"
	"sync"
	"time"
)

const pruneEvery = 256

// Memory is an in-process Ledger. It is safe for concurrent use but is not
// shared between processes.
type Memory struct {
	mu       sync.Mutex
	consumed map[string]time.Time
	revoked  map[string]time.Time
	ops      uint64
}

// NewMemory returns an empty Memory ledger.
func NewMemory() *Memory {
	return &Memory{
		consumed: make(map[string]time.Time),
		revoked:  make(map[string]time.Time),
	}
}

// Consume implements Ledger.
func (m *Memory) Consume(_ context.Context, rec Record) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.maybePrune(rec.Now)

	if until, ok := m.revoked[rec.Family]; ok && until.After(rec.Now) {
		return OutcomeFamilyRevoked, nil
	}
	if until, ok := m.consumed[rec.TokenID]; ok && until.After(rec.Now) {
		m.revokeLocked(rec.Family, rec.RevokeUntil)
		return OutcomeReplayed, nil
	}
	m.consumed[rec.TokenID] = rec.ExpiresAt
	return OutcomeConsumed, nil
}

// RevokeFamily implements Ledger.
func (m *Memory) RevokeFamily(_ context.Context, family string, now, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.maybePrune(now)
	m.revokeLocked(family, until)
	return nil
}

// Len returns the number of tracked consumed ids and revoked families.
func (m *Memory) Len() (consumed, revoked int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.consumed), len(m.revoked)
}

func (m *Memory) revokeLocked(family string, until time.Time) {
	if family == "" {
		return
	}
	if cur, ok := m.revoked[family]; ok && cur.After(until) {
		return
	}
	m.revoked[family] = until
}

func (m *Memory) maybePrune(now time.Time) {
	m.ops++
	if m.ops%pruneEvery != 0 {
		return
	}
	for id, until := range m.consumed {
		if !until.After(now) {
			delete(m.consumed, id)
		}
	}
	for fam, until := range m.revoked {
		if !until.After(now) {
			delete(m.revoked, fam)
		}
	}
}
