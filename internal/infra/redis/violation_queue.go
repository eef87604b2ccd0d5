package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"competition-session-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ViolationQueue pushes suppressed input attempts onto ViolationsQueue for the
// Postgres worker to persist in batches.
type ViolationQueue struct {
	client *redis.Client
}

func NewViolationQueue(client *redis.Client) *ViolationQueue {
	return &ViolationQueue{client: client}
}

func (q *ViolationQueue) Record(ctx context.Context, v domain.Violation) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal violation: %w", err)
	}
	if err := q.client.RPush(ctx, ViolationsQueue, data).Err(); err != nil {
		return fmt.Errorf("queue violation: %w", err)
	}
	return nil
}
