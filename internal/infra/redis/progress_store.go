package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"competition-session-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ProgressStore keeps one JSON snapshot per competition under progress:{id}.
// Every save refreshes the TTL so abandoned attempts age out.
type ProgressStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProgressStore(client *redis.Client, ttl time.Duration) *ProgressStore {
	return &ProgressStore{client: client, ttl: ttl}
}

func (s *ProgressStore) Save(ctx context.Context, competitionID string, snapshot domain.ProgressSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	if err := s.client.Set(ctx, progressKey(competitionID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

func (s *ProgressStore) Load(ctx context.Context, competitionID string) (domain.ProgressSnapshot, bool, error) {
	raw, err := s.client.Get(ctx, progressKey(competitionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ProgressSnapshot{}, false, nil
	}
	if err != nil {
		return domain.ProgressSnapshot{}, false, fmt.Errorf("load progress: %w", err)
	}
	var snap domain.ProgressSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.ProgressSnapshot{}, false, fmt.Errorf("%w: %v", domain.ErrStorageCorruption, err)
	}
	return snap, true, nil
}

func (s *ProgressStore) Clear(ctx context.Context, competitionID string) error {
	if err := s.client.Del(ctx, progressKey(competitionID)).Err(); err != nil {
		return fmt.Errorf("clear progress: %w", err)
	}
	return nil
}
