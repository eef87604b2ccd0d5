package app

import (
	"context"

	"competition-session-service/internal/domain"
)

// ProgressStore persists one snapshot per competition under "progress:{id}".
// Load reports ok=false when nothing is stored and wraps domain.ErrStorageCorruption
// when stored data cannot be decoded.
type ProgressStore interface {
	Save(ctx context.Context, competitionID string, snapshot domain.ProgressSnapshot) error
	Load(ctx context.Context, competitionID string) (domain.ProgressSnapshot, bool, error)
	Clear(ctx context.Context, competitionID string) error
}

// PayloadStore holds the transient session input handed off by the selection surface.
// Get returns domain.ErrCompetitionNotFound when nothing is staged.
type PayloadStore interface {
	Put(ctx context.Context, competitionID string, raw []byte) error
	Get(ctx context.Context, competitionID string) ([]byte, error)
	Delete(ctx context.Context, competitionID string) error
}

// Reporter delivers question reports to the report endpoint.
type Reporter interface {
	Report(ctx context.Context, report domain.Report) error
}

// ViolationSink receives suppressed clipboard/selection attempts.
type ViolationSink interface {
	Record(ctx context.Context, v domain.Violation) error
}

// EngineRegistry tracks the live engine of every open competition.
type EngineRegistry interface {
	Get(competitionID string) (*Engine, bool)
	Put(competitionID string, engine *Engine)
	DeleteIfDone(competitionID string)
	List() []*Engine
}
