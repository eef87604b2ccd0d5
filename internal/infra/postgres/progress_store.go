package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"competition-session-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ProgressStore keeps snapshots as JSONB in competition_progress.
type ProgressStore struct {
	pool *pgxpool.Pool
}

func NewProgressStore(pool *pgxpool.Pool) *ProgressStore {
	return &ProgressStore{pool: pool}
}

func (s *ProgressStore) Save(ctx context.Context, competitionID string, snapshot domain.ProgressSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO competition_progress (id, snapshot, saved_at) VALUES ($1, $2::jsonb, now())
         ON CONFLICT (id) DO UPDATE SET snapshot = EXCLUDED.snapshot, saved_at = EXCLUDED.saved_at`,
		competitionID, string(raw))
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

func (s *ProgressStore) Load(ctx context.Context, competitionID string) (domain.ProgressSnapshot, bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT snapshot FROM competition_progress WHERE id=$1`, competitionID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
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
	if _, err := s.pool.Exec(ctx, `DELETE FROM competition_progress WHERE id=$1`, competitionID); err != nil {
		return fmt.Errorf("clear progress: %w", err)
	}
	return nil
}
