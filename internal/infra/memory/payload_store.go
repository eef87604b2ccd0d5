package memory

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"competition-session-service/internal/app"
	"competition-session-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// PayloadStore keeps staged session input with a TTL. With a backing store it
// acts as a read-through cache: misses are loaded once per id and writes go to both.
type PayloadStore struct {
	backing app.PayloadStore
	ttl     time.Duration
	clock   func() time.Time
	sf      singleflight.Group
	rnd     *rand.Rand

	mu      sync.RWMutex
	entries map[string]cachedPayload
}

type cachedPayload struct {
	raw       []byte
	expiresAt time.Time
}

// NewPayloadStore returns a store; backing may be nil. A ttl <= 0 never expires.
func NewPayloadStore(backing app.PayloadStore, ttl time.Duration) *PayloadStore {
	return NewPayloadStoreWithClock(backing, ttl, time.Now)
}

// NewPayloadStoreWithClock is for deterministic expiry in tests.
func NewPayloadStoreWithClock(backing app.PayloadStore, ttl time.Duration, clock func() time.Time) *PayloadStore {
	return &PayloadStore{
		backing: backing,
		ttl:     ttl,
		clock:   clock,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		entries: make(map[string]cachedPayload),
	}
}

func (s *PayloadStore) Put(ctx context.Context, competitionID string, raw []byte) error {
	if s.backing != nil {
		if err := s.backing.Put(ctx, competitionID, raw); err != nil {
			return err
		}
	}
	s.store(competitionID, raw)
	return nil
}

func (s *PayloadStore) Get(ctx context.Context, competitionID string) ([]byte, error) {
	if raw, ok := s.lookup(competitionID); ok {
		return raw, nil
	}
	if s.backing == nil {
		return nil, domain.ErrCompetitionNotFound
	}

	result, err, _ := s.sf.Do(competitionID, func() (interface{}, error) {
		if raw, ok := s.lookup(competitionID); ok {
			return raw, nil
		}
		raw, err := s.backing.Get(ctx, competitionID)
		if err != nil {
			return nil, err
		}
		s.store(competitionID, raw)
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (s *PayloadStore) Delete(ctx context.Context, competitionID string) error {
	s.mu.Lock()
	delete(s.entries, competitionID)
	s.mu.Unlock()
	if s.backing == nil {
		return nil
	}
	if err := s.backing.Delete(ctx, competitionID); err != nil && !errors.Is(err, domain.ErrCompetitionNotFound) {
		return err
	}
	return nil
}

func (s *PayloadStore) lookup(competitionID string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[competitionID]
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && !entry.expiresAt.After(s.clock()) {
		return nil, false
	}
	return entry.raw, true
}

func (s *PayloadStore) store(competitionID string, raw []byte) {
	entry := cachedPayload{raw: append([]byte(nil), raw...)}
	if ttl := s.ttlWithJitter(); ttl > 0 {
		entry.expiresAt = s.clock().Add(ttl)
	}
	s.mu.Lock()
	s.entries[competitionID] = entry
	s.mu.Unlock()
}

func (s *PayloadStore) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// add up to 10% jitter to spread expirations
	jitterMax := int64(s.ttl) / 10
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}
