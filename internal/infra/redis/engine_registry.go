package redis

import (
	"context"
	"sync"
	"time"

	"competition-session-service/internal/app"
	"github.com/redis/go-redis/v9"
)

// EngineRegistry is a Redis-aware implementation of app.EngineRegistry.
// Engines live in a local map; Redis only carries a liveness marker per
// competition so operators can see which instance runs what.
type EngineRegistry struct {
	client   *redis.Client
	ttl      time.Duration
	instance string
	mu       sync.RWMutex
	engines  map[string]*app.Engine
}

func NewEngineRegistry(client *redis.Client, instance string, ttl time.Duration) *EngineRegistry {
	return &EngineRegistry{
		client:   client,
		ttl:      ttl,
		instance: instance,
		engines:  make(map[string]*app.Engine),
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
	// best-effort liveness marker
	_ = r.client.Set(context.Background(), engineKey(competitionID), r.instance, r.ttl).Err()
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
		_ = r.client.Del(context.Background(), engineKey(competitionID)).Err()
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
