package memory

import (
	"context"
	"encoding/json"
	"sync"

	"competition-session-service/internal/domain"
)

// Submission is one call received by Scorer.
type Submission struct {
	CompetitionID string
	Payload       domain.SubmissionPayload
	Reason        domain.SubmitReason
}

// Scorer stands in for the scoring service when none is configured. It accepts
// every submission and report and keeps them for inspection.
type Scorer struct {
	mu          sync.Mutex
	submissions []Submission
	reports     []domain.Report
	violations  []domain.Violation
}

func NewScorer() *Scorer {
	return &Scorer{}
}

func (s *Scorer) Submit(_ context.Context, competitionID string, payload domain.SubmissionPayload, reason domain.SubmitReason) (json.RawMessage, error) {
	s.mu.Lock()
	s.submissions = append(s.submissions, Submission{CompetitionID: competitionID, Payload: payload, Reason: reason})
	n := len(s.submissions)
	s.mu.Unlock()
	return json.Marshal(map[string]interface{}{
		"competitionId": competitionID,
		"answered":      countAnswered(payload.Answers),
		"attempt":       n,
	})
}

func (s *Scorer) Report(_ context.Context, report domain.Report) error {
	s.mu.Lock()
	s.reports = append(s.reports, report)
	s.mu.Unlock()
	return nil
}

func (s *Scorer) Record(_ context.Context, v domain.Violation) error {
	s.mu.Lock()
	s.violations = append(s.violations, v)
	s.mu.Unlock()
	return nil
}

func (s *Scorer) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Submission(nil), s.submissions...)
}

func (s *Scorer) Reports() []domain.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Report(nil), s.reports...)
}

func (s *Scorer) Violations() []domain.Violation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Violation(nil), s.violations...)
}

func countAnswered(answers []domain.SubmittedAnswer) int {
	n := 0
	for _, a := range answers {
		if a.SelectedOption != 0 {
			n++
		}
	}
	return n
}
