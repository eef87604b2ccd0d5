package postgres

import (
	"context"
	"errors"
	"fmt"

	"competition-session-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// PayloadStore loads staged session JSONB from Postgres.
type PayloadStore struct {
	pool *pgxpool.Pool
}

func NewPayloadStore(pool *pgxpool.Pool) *PayloadStore {
	return &PayloadStore{pool: pool}
}

func (s *PayloadStore) Put(ctx context.Context, competitionID string, raw []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO competition_payloads (id, data, staged_at) VALUES ($1, $2::jsonb, now())
         ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, staged_at = EXCLUDED.staged_at`,
		competitionID, string(raw))
	if err != nil {
		return fmt.Errorf("stage payload: %w", err)
	}
	return nil
}

func (s *PayloadStore) Get(ctx context.Context, competitionID string) ([]byte, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM competition_payloads WHERE id=$1`, competitionID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCompetitionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load payload: %w", err)
	}
	return raw, nil
}

func (s *PayloadStore) Delete(ctx context.Context, competitionID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM competition_payloads WHERE id=$1`, competitionID); err != nil {
		return fmt.Errorf("delete payload: %w", err)
	}
	return nil
}
