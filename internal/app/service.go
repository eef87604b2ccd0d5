package app

import (
	"context"
	"errors"
	"fmt"

	"competition-session-service/internal/domain"
	"competition-session-service/internal/loader"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrAlreadyRunning rejects staging input for a competition with a live engine.
var ErrAlreadyRunning = errors.New("competition already running")

// CompetitionService contains the competition use cases: staging the session
// input, opening one engine per competition and tearing engines down.
type CompetitionService struct {
	registry EngineRegistry
	deps     Deps
	sf       singleflight.Group
	log      zerolog.Logger
}

func NewCompetitionService(registry EngineRegistry, deps Deps) *CompetitionService {
	return &CompetitionService{
		registry: registry,
		deps:     deps,
		log:      deps.Logger.With().Str("component", "competition_service").Logger(),
	}
}

// Stage validates and stores the session input for a later Open.
func (s *CompetitionService) Stage(ctx context.Context, competitionID string, raw []byte) error {
	session, err := loader.Load(raw)
	if err != nil {
		return err
	}
	if session.CompetitionID() != competitionID {
		return fmt.Errorf("%w: payload is for competition %s", domain.ErrInvalidSession, session.CompetitionID())
	}
	if e, ok := s.registry.Get(competitionID); ok && !e.IsDone() {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, competitionID)
	}
	if err := s.deps.Payloads.Put(ctx, competitionID, raw); err != nil {
		return fmt.Errorf("stage payload: %w", err)
	}
	s.log.Info().Str("competition_id", competitionID).Int("questions", len(session.Questions())).Msg("Session payload staged")
	return nil
}

// Open returns the running engine for a competition, starting it on first use.
// Concurrent opens for the same id share one load.
func (s *CompetitionService) Open(ctx context.Context, competitionID string) (*Engine, error) {
	if e, ok := s.registry.Get(competitionID); ok && !e.IsDone() {
		return e, nil
	}

	result, err, _ := s.sf.Do(competitionID, func() (interface{}, error) {
		// Re-check in case another caller finished opening.
		if e, ok := s.registry.Get(competitionID); ok && !e.IsDone() {
			return e, nil
		}
		e, err := Open(ctx, competitionID, s.deps)
		if err != nil {
			return nil, err
		}
		s.registry.Put(competitionID, e)
		go s.reap(e)
		return e, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSession) {
			s.log.Warn().Err(err).Str("competition_id", competitionID).Msg("Invalid session input")
		}
		return nil, err
	}
	return result.(*Engine), nil
}

// Get returns the live engine, if any.
func (s *CompetitionService) Get(competitionID string) (*Engine, bool) {
	e, ok := s.registry.Get(competitionID)
	if !ok || e.IsDone() {
		return nil, false
	}
	return e, true
}

// Abandon discards a competition whether or not an engine is running for it.
func (s *CompetitionService) Abandon(ctx context.Context, competitionID string) error {
	if e, ok := s.Get(competitionID); ok {
		return e.Abandon(ctx)
	}
	if err := s.deps.Progress.Clear(ctx, competitionID); err != nil {
		return fmt.Errorf("clear progress: %w", err)
	}
	if err := s.deps.Payloads.Delete(ctx, competitionID); err != nil {
		return fmt.Errorf("delete payload: %w", err)
	}
	return nil
}

// Shutdown stops every engine. Saved progress is kept so the competitions resume
// on the next start.
func (s *CompetitionService) Shutdown() {
	for _, e := range s.registry.List() {
		e.Close()
	}
}

func (s *CompetitionService) reap(e *Engine) {
	select {
	case <-e.Done():
	case <-e.loopDone:
		return
	}
	s.registry.DeleteIfDone(e.ID())
	e.Close()
	s.log.Debug().Str("competition_id", e.ID()).Msg("Engine released")
}
