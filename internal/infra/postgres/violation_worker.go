package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"competition-session-service/internal/domain"
	infraredis "competition-session-service/internal/infra/redis"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Redis BLPOP needs at least 1s
)

// ViolationWorker drains the violation queue into competition_violations.
type ViolationWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
	// requeueBackoff slows the loop down while Postgres is unavailable.
	requeueBackoff time.Duration
}

func NewViolationWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ViolationWorker {
	return &ViolationWorker{
		pool:           pool,
		rdb:            rdb,
		log:            log.With().Str("component", "violation_worker").Logger(),
		requeueBackoff: 2 * time.Second,
	}
}

// Start blocks until ctx is cancelled, flushing the remaining buffer on the way out.
func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Violation worker started")

	buffer := make([]domain.Violation, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, infraredis.ViolationsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			sleep(ctx, 3*time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var v domain.Violation
		if err := json.Unmarshal([]byte(result[1]), &v); err != nil {
			// malformed entries can never succeed
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed violation")
			continue
		}
		buffer = append(buffer, v)
	}
}

// flushSafe tries a bulk copy, then row-by-row inserts, then requeues what still failed.
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []domain.Violation) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *ViolationWorker) bulkInsert(ctx context.Context, batch []domain.Violation) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, v := range batch {
		id, err := uuid.Parse(v.ID)
		if err != nil {
			return err
		}
		rows = append(rows, []interface{}{id, v.CompetitionID, v.Kind, v.Target, v.RecordedAt})
	}
	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"competition_violations"},
		[]string{"id", "competition_id", "kind", "target", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *ViolationWorker) fallbackInsert(ctx context.Context, batch []domain.Violation) {
	requeue := make([]domain.Violation, 0)
	for _, v := range batch {
		id, err := uuid.Parse(v.ID)
		if err != nil {
			w.log.Error().Str("id", v.ID).Msg("Dropping violation with invalid id")
			continue
		}
		_, err = w.pool.Exec(ctx,
			`INSERT INTO competition_violations (id, competition_id, kind, target, recorded_at)
             VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`,
			id, v.CompetitionID, v.Kind, v.Target, v.RecordedAt,
		)
		if err != nil {
			w.log.Error().Err(err).Str("competition_id", v.CompetitionID).Msg("Insert failed, requeueing")
			requeue = append(requeue, v)
		}
	}
	if len(requeue) > 0 {
		w.requeue(ctx, requeue)
	}
}

func (w *ViolationWorker) requeue(ctx context.Context, items []domain.Violation) {
	pipe := w.rdb.Pipeline()
	for _, v := range items {
		data, _ := json.Marshal(v)
		pipe.RPush(ctx, infraredis.ViolationsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("Failed to requeue violations, data lost")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed violations")
	sleep(ctx, w.requeueBackoff)
}

func (w *ViolationWorker) shutdown(buffer []domain.Violation) {
	w.log.Info().Int("pending", len(buffer)).Msg("Violation worker stopping, flushing buffer")
	if len(buffer) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.flushSafe(ctx, buffer)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
