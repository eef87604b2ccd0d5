package guard

import "sync"

// Hub is an Interceptor that fans the guard out to every attached client
// connection. A connection attached while the guard is enabled is enabled at once.
type Hub struct {
	mu       sync.Mutex
	enabled  bool
	handlers Handlers
	attached map[int]Interceptor
	next     int
}

func NewHub() *Hub {
	return &Hub{attached: make(map[int]Interceptor)}
}

func (h *Hub) Enable(handlers Handlers) {
	h.mu.Lock()
	h.enabled = true
	h.handlers = handlers
	targets := h.snapshotLocked()
	h.mu.Unlock()

	for _, t := range targets {
		t.Enable(handlers)
	}
}

func (h *Hub) Disable() {
	h.mu.Lock()
	h.enabled = false
	h.handlers = Handlers{}
	targets := h.snapshotLocked()
	h.mu.Unlock()

	for _, t := range targets {
		t.Disable()
	}
}

// Attach registers a connection's interceptor and returns its detach function.
func (h *Hub) Attach(i Interceptor) func() {
	h.mu.Lock()
	id := h.next
	h.next++
	h.attached[id] = i
	enabled, handlers := h.enabled, h.handlers
	h.mu.Unlock()

	if enabled {
		i.Enable(handlers)
	} else {
		i.Disable()
	}
	return func() {
		h.mu.Lock()
		delete(h.attached, id)
		h.mu.Unlock()
	}
}

// Enabled reports the current state.
func (h *Hub) Enabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enabled
}

func (h *Hub) snapshotLocked() []Interceptor {
	out := make([]Interceptor, 0, len(h.attached))
	for _, i := range h.attached {
		out = append(out, i)
	}
	return out
}
