package memory

import (
	"context"
	"encoding/json"
	"testing"

	"competition-session-service/internal/domain"
)

func TestScorerRecordsSubmissions(t *testing.T) {
	s := NewScorer()
	payload := domain.SubmissionPayload{
		SelectedCourses: []string{"MTH101"},
		Answers: []domain.SubmittedAnswer{
			{QuestionID: "q1", SelectedOption: 2},
			{QuestionID: "q2", SelectedOption: 0},
		},
		TimeUsedMinutes:  3,
		TotalTimeMinutes: 10,
	}

	record, err := s.Submit(context.Background(), "c-1", payload, domain.ReasonManual)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	var body struct {
		Answered int `json:"answered"`
	}
	if err := json.Unmarshal(record, &body); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if body.Answered != 1 {
		t.Fatalf("expected 1 answered, got %d", body.Answered)
	}
	subs := s.Submissions()
	if len(subs) != 1 || subs[0].Reason != domain.ReasonManual {
		t.Fatalf("unexpected submissions %+v", subs)
	}
}
