package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"competition-session-service/internal/domain"
)

// ProgressStore keeps encoded snapshots so a process restart within the same
// store behaves like a storage round trip.
type ProgressStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewProgressStore() *ProgressStore {
	return &ProgressStore{data: make(map[string][]byte)}
}

func (s *ProgressStore) Save(_ context.Context, competitionID string, snapshot domain.ProgressSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	s.mu.Lock()
	s.data[key(competitionID)] = raw
	s.mu.Unlock()
	return nil
}

func (s *ProgressStore) Load(_ context.Context, competitionID string) (domain.ProgressSnapshot, bool, error) {
	s.mu.RLock()
	raw, ok := s.data[key(competitionID)]
	s.mu.RUnlock()
	if !ok {
		return domain.ProgressSnapshot{}, false, nil
	}
	var snap domain.ProgressSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.ProgressSnapshot{}, false, fmt.Errorf("%w: %v", domain.ErrStorageCorruption, err)
	}
	return snap, true, nil
}

func (s *ProgressStore) Clear(_ context.Context, competitionID string) error {
	s.mu.Lock()
	delete(s.data, key(competitionID))
	s.mu.Unlock()
	return nil
}

// SetRaw stores bytes as-is. Used to simulate foreign or damaged entries.
func (s *ProgressStore) SetRaw(competitionID string, raw []byte) {
	s.mu.Lock()
	s.data[key(competitionID)] = raw
	s.mu.Unlock()
}

func key(competitionID string) string {
	return "progress:" + competitionID
}
