// Package submission sends a finished competition to the scoring service exactly once.
package submission

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"competition-session-service/internal/domain"
	"github.com/rs/zerolog"
)

// Submitter is the scoring service endpoint.
type Submitter interface {
	Submit(ctx context.Context, competitionID string, payload domain.SubmissionPayload, reason domain.SubmitReason) (json.RawMessage, error)
}

// ProgressClearer removes the persisted snapshot.
type ProgressClearer interface {
	Clear(ctx context.Context, competitionID string) error
}

// PayloadRemover removes the transient session input.
type PayloadRemover interface {
	Delete(ctx context.Context, competitionID string) error
}

// Disarmer turns the anti-exit guard off.
type Disarmer interface {
	Disarm()
}

// Config wires a Coordinator. Progress, Payloads and Guard are optional.
type Config struct {
	Submitter Submitter
	Progress  ProgressClearer
	Payloads  PayloadRemover
	Guard     Disarmer
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Coordinator guards a competition's submission with a single in-flight flag.
type Coordinator struct {
	cfg Config

	mu        sync.Mutex
	inFlight  bool
	submitted bool
}

func New(cfg Config) *Coordinator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Coordinator{cfg: cfg}
}

// Submit builds the payload and calls the scoring service. A call made while
// another is outstanding returns ErrSubmissionInProgress without side effects.
// On success the snapshot and transient input are removed and the guard is disarmed;
// on failure everything is left in place and a *domain.SubmissionError is returned.
func (c *Coordinator) Submit(ctx context.Context, session domain.CompetitionSession, answers domain.AnswerMap, elapsedSeconds int, reason domain.SubmitReason) (domain.SubmissionResult, error) {
	c.mu.Lock()
	if c.submitted {
		c.mu.Unlock()
		return domain.SubmissionResult{}, domain.ErrAlreadySubmitted
	}
	if c.inFlight {
		c.mu.Unlock()
		return domain.SubmissionResult{}, domain.ErrSubmissionInProgress
	}
	c.inFlight = true
	c.mu.Unlock()

	id := session.CompetitionID()
	log := c.cfg.Logger.With().Str("competition_id", id).Str("reason", string(reason)).Logger()
	payload := BuildPayload(session, answers, elapsedSeconds)

	record, err := c.cfg.Submitter.Submit(ctx, id, payload, reason)
	if err != nil {
		c.release(false)
		log.Warn().Err(err).Msg("Submission failed")
		return domain.SubmissionResult{}, &domain.SubmissionError{Reason: reason, Err: err}
	}

	c.release(true)
	c.cleanup(ctx, id, log)
	log.Info().Int("answers", len(payload.Answers)).Int("time_used_minutes", payload.TimeUsedMinutes).Msg("Competition submitted")

	return domain.SubmissionResult{
		CompetitionID: id,
		Reason:        reason,
		Record:        record,
		SubmittedAt:   c.cfg.Now(),
	}, nil
}

// InFlight reports whether a submission is outstanding.
func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Submitted reports whether a submission succeeded.
func (c *Coordinator) Submitted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitted
}

func (c *Coordinator) release(ok bool) {
	c.mu.Lock()
	c.inFlight = false
	if ok {
		c.submitted = true
	}
	c.mu.Unlock()
}

// cleanup failures are logged only: the attempt is already recorded upstream.
func (c *Coordinator) cleanup(ctx context.Context, id string, log zerolog.Logger) {
	if c.cfg.Guard != nil {
		c.cfg.Guard.Disarm()
	}
	if c.cfg.Progress != nil {
		if err := c.cfg.Progress.Clear(ctx, id); err != nil {
			log.Error().Err(err).Msg("Clear progress after submission failed")
		}
	}
	if c.cfg.Payloads != nil {
		if err := c.cfg.Payloads.Delete(ctx, id); err != nil {
			log.Error().Err(err).Msg("Delete session payload after submission failed")
		}
	}
}

// BuildPayload lists every question of the session in order; unanswered questions carry 0.
func BuildPayload(session domain.CompetitionSession, answers domain.AnswerMap, elapsedSeconds int) domain.SubmissionPayload {
	questions := session.Questions()
	entries := make([]domain.SubmittedAnswer, 0, len(questions))
	for _, q := range questions {
		entries = append(entries, domain.SubmittedAnswer{
			QuestionID:     q.ID,
			SelectedOption: answers[q.ID],
		})
	}
	return domain.SubmissionPayload{
		SelectedCourses:  session.SelectedCourses(),
		Answers:          entries,
		TimeUsedMinutes:  TimeUsedMinutes(elapsedSeconds, session.TotalTimeMinutes()),
		TotalTimeMinutes: session.TotalTimeMinutes(),
	}
}

// TimeUsedMinutes rounds a started minute up and caps at the session length.
func TimeUsedMinutes(elapsedSeconds, totalMinutes int) int {
	if elapsedSeconds <= 0 {
		return 0
	}
	minutes := (elapsedSeconds + 59) / 60
	if minutes > totalMinutes {
		return totalMinutes
	}
	return minutes
}
