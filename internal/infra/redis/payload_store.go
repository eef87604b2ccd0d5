package redis

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"competition-session-service/internal/app"
	"competition-session-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// PayloadStore caches staged session input in Redis and falls back to a backing
// store (e.g. Postgres) on a miss. The payload is stored as:
//
//	SET competition:{id}:payload {json} EX ttl
type PayloadStore struct {
	client  *redis.Client
	backing app.PayloadStore
	ttl     time.Duration
	sf      singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewPayloadStore returns a store; backing may be nil.
func NewPayloadStore(client *redis.Client, backing app.PayloadStore, ttl time.Duration) *PayloadStore {
	return &PayloadStore{
		client:  client,
		backing: backing,
		ttl:     ttl,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *PayloadStore) Put(ctx context.Context, competitionID string, raw []byte) error {
	if s.backing != nil {
		if err := s.backing.Put(ctx, competitionID, raw); err != nil {
			return err
		}
	}
	if err := s.client.Set(ctx, payloadKey(competitionID), raw, s.ttlWithJitter()).Err(); err != nil {
		return fmt.Errorf("stage payload: %w", err)
	}
	return nil
}

func (s *PayloadStore) Get(ctx context.Context, competitionID string) ([]byte, error) {
	key := payloadKey(competitionID)
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == nil {
		return raw, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get payload: %w", err)
	}
	if s.backing == nil {
		return nil, domain.ErrCompetitionNotFound
	}

	result, err, _ := s.sf.Do(competitionID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if raw, err := s.client.Get(ctx, key).Bytes(); err == nil {
			return raw, nil
		}
		raw, err := s.backing.Get(ctx, competitionID)
		if err != nil {
			return nil, err
		}
		_ = s.client.Set(ctx, key, raw, s.ttlWithJitter()).Err()
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (s *PayloadStore) Delete(ctx context.Context, competitionID string) error {
	if err := s.client.Del(ctx, payloadKey(competitionID)).Err(); err != nil {
		return fmt.Errorf("delete payload: %w", err)
	}
	if s.backing != nil {
		if err := s.backing.Delete(ctx, competitionID); err != nil && !errors.Is(err, domain.ErrCompetitionNotFound) {
			return err
		}
	}
	return nil
}

func (s *PayloadStore) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	jitterMax := int64(s.ttl) / 10
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}
