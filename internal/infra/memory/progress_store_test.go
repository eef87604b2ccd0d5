package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"competition-session-service/internal/domain"
)

func TestProgressStoreRoundTrip(t *testing.T) {
	store := NewProgressStore()
	ctx := context.Background()

	if _, ok, err := store.Load(ctx, "c-1"); err != nil || ok {
		t.Fatalf("expected empty store, ok=%v err=%v", ok, err)
	}

	saved := domain.ProgressSnapshot{
		Answers:              domain.AnswerMap{"q1": 2, "q7": 4},
		CurrentCourseIndex:   1,
		CurrentQuestionIndex: 3,
		RemainingSeconds:     1234,
		SavedAt:              time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := store.Save(ctx, "c-1", saved); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := store.Load(ctx, "c-1")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.RemainingSeconds != 1234 || got.CurrentCourseIndex != 1 || got.CurrentQuestionIndex != 3 {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	if got.Answers["q7"] != 4 || len(got.Answers) != 2 {
		t.Fatalf("unexpected answers %+v", got.Answers)
	}

	if err := store.Clear(ctx, "c-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := store.Load(ctx, "c-1"); ok {
		t.Fatalf("expected snapshot cleared")
	}
}

func TestProgressStoreCorruption(t *testing.T) {
	store := NewProgressStore()
	store.SetRaw("c-1", []byte("{not json"))

	_, _, err := store.Load(context.Background(), "c-1")
	if !errors.Is(err, domain.ErrStorageCorruption) {
		t.Fatalf("expected storage corruption, got %v", err)
	}
}
