package memory

import (
	"sync"

	"competition-session-service/internal/app"
)

// EngineRegistry is an in-memory implementation of app.EngineRegistry.
type EngineRegistry struct {
	mu      sync.RWMutex
	engines map[string]*app.Engine
}

func NewEngineRegistry() *EngineRegistry {
	return &EngineRegistry{
		engines: make(map[string]*app.Engine),
	}
}

func (r *EngineRegistry) Get(competitionID string) (*app.Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[competitionID]
	return e, ok
}

func (r *EngineRegistry) Put(competitionID string, engine *app.Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[competitionID] = engine
}

func (r *EngineRegistry) DeleteIfDone(competitionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engines[competitionID]
	if !ok {
		return
	}
	if e.IsDone() {
		delete(r.engines, competitionID)
	}
}

func (r *EngineRegistry) List() []*app.Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*app.Engine, 0, len(r.engines))
	for _, e := range r.engines {
		out = append(out, e)
	}
	return out
}
