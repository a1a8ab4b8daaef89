package store

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/layer-3/nostr-gate/core"
	"github.com/layer-3/nostr-gate/ports"
)

// MemoryStore is an in-memory implementation of the ChallengeStore interface.
// Entries expire after their TTL and the oldest entries are dropped once the
// store reaches capacity.
type MemoryStore struct {
	cfg        Config
	challenges map[string]*list.Element
	order      *list.List // of *core.Challenge, oldest first
	mu         sync.RWMutex
	now        func() time.Time
}

var _ ports.ChallengeStore = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(cfg Config) *MemoryStore {
	return &MemoryStore{
		cfg:        cfg.withDefaults(),
		challenges: make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// SetClock replaces the time source. Used by tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Create stores a new pending challenge
func (s *MemoryStore) Create(ctx context.Context, kind core.ChallengeKind) (*core.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	var id string
	for {
		var err error
		if id, err = newChallengeID(); err != nil {
			return nil, err
		}
		if _, exists := s.challenges[id]; !exists {
			break
		}
	}

	if s.order.Len() >= s.cfg.Capacity {
		s.sweepLocked(now)
	}
	for s.order.Len() >= s.cfg.Capacity {
		s.removeLocked(s.order.Front())
	}

	challenge := &core.Challenge{
		ID:        id,
		Kind:      kind,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.ChallengeTTL),
	}
	s.challenges[id] = s.order.PushBack(challenge)

	c := *challenge
	return &c, nil
}

// Get returns a copy of a live challenge
func (s *MemoryStore) Get(ctx context.Context, id string) (*core.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	challenge, ok := s.lookupLocked(id)
	if !ok {
		return nil, core.ErrChallengeNotFound
	}

	c := *challenge
	return &c, nil
}

// MarkVerified transitions a pending challenge to verified
func (s *MemoryStore) MarkVerified(ctx context.Context, id, pubkey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.lookupLocked(id)
	if !ok {
		return core.ErrChallengeNotFound
	}
	if challenge.Verified {
		return core.ErrAlreadyVerified
	}

	challenge.Verified = true
	challenge.Pubkey = pubkey
	challenge.ExpiresAt = s.now().Add(s.cfg.VerifiedTTL)
	return nil
}

// Status reports the poll-visible state of a challenge
func (s *MemoryStore) Status(ctx context.Context, id string) (core.ChallengeStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	challenge, ok := s.lookupLocked(id)
	if !ok {
		return core.StatusNotFound, nil
	}
	return challenge.Status(), nil
}

// Len returns the number of entries held, including expired ones not yet swept
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.order.Len()
}

// Sweep removes every expired entry and returns how many were removed
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now())
}

// Run sweeps expired entries every interval until ctx is done
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

func (s *MemoryStore) lookupLocked(id string) (*core.Challenge, bool) {
	elem, ok := s.challenges[id]
	if !ok {
		return nil, false
	}
	challenge := elem.Value.(*core.Challenge)
	if challenge.Expired(s.now()) {
		return nil, false
	}
	return challenge, true
}

func (s *MemoryStore) sweepLocked(now time.Time) int {
	removed := 0
	for elem := s.order.Front(); elem != nil; {
		next := elem.Next()
		if elem.Value.(*core.Challenge).Expired(now) {
			s.removeLocked(elem)
			removed++
		}
		elem = next
	}
	return removed
}

func (s *MemoryStore) removeLocked(elem *list.Element) {
	challenge := s.order.Remove(elem).(*core.Challenge)
	delete(s.challenges, challenge.ID)
}
