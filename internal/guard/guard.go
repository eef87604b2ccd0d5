// Package guard keeps a participant inside an active competition: it suppresses
// clipboard and selection shortcuts, turns the back gesture into a confirmation
// prompt, and warns before the page is unloaded.
package guard

import (
	"sync"
)

// Input event kinds suppressed while the guard is armed.
const (
	InputContextMenu = "contextmenu"
	InputSelectStart = "selectstart"
	InputCopy        = "copy"
	InputCut         = "cut"
	InputPaste       = "paste"
	InputSelectAll   = "select-all"
)

// DefaultExemptField is the report-description input that stays editable.
const DefaultExemptField = "report-description"

var suppressed = map[string]bool{
	InputContextMenu: true,
	InputSelectStart: true,
	InputCopy:        true,
	InputCut:         true,
	InputPaste:       true,
	InputSelectAll:   true,
}

// InputEvent is a clipboard/selection attempt reported by the client.
type InputEvent struct {
	Kind   string `json:"kind"`
	Target string `json:"target,omitempty"`
}

// BackDecision tells the platform what to do with a back gesture.
type BackDecision struct {
	Prompt   bool `json:"prompt"`
	Navigate bool `json:"navigate"`
}

// Handlers are registered with an Interceptor when the guard is armed.
type Handlers struct {
	Back         func() BackDecision
	BeforeUnload func() bool
	Input        func(InputEvent) bool
}

// Interceptor is the platform capability that routes navigation and input
// attempts to the guard.
type Interceptor interface {
	Enable(h Handlers)
	Disable()
}

// ViolationRecorder receives suppressed attempts. Implementations must not block.
type ViolationRecorder interface {
	RecordViolation(ev InputEvent)
}

// Options configure a Guard.
type Options struct {
	ExemptField string
	Recorder    ViolationRecorder
	// OnPrompt is called (outside the guard's lock) when the exit prompt opens.
	OnPrompt func()
}

// Guard is safe for concurrent use.
type Guard struct {
	interceptor Interceptor
	exempt      string
	recorder    ViolationRecorder
	onPrompt    func()

	mu         sync.Mutex
	armed      bool
	retired    bool
	promptOpen bool
}

func New(interceptor Interceptor, opts Options) *Guard {
	exempt := opts.ExemptField
	if exempt == "" {
		exempt = DefaultExemptField
	}
	return &Guard{
		interceptor: interceptor,
		exempt:      exempt,
		recorder:    opts.Recorder,
		onPrompt:    opts.OnPrompt,
	}
}

// Arm enables interception. It does nothing once the guard was disarmed.
func (g *Guard) Arm() {
	g.mu.Lock()
	if g.armed || g.retired {
		g.mu.Unlock()
		return
	}
	g.armed = true
	g.mu.Unlock()

	g.interceptor.Enable(Handlers{
		Back:         g.Back,
		BeforeUnload: g.BeforeUnload,
		Input:        g.Input,
	})
}

// Disarm turns every guard off for good.
func (g *Guard) Disarm() {
	g.mu.Lock()
	wasArmed := g.armed
	g.armed = false
	g.retired = true
	g.promptOpen = false
	g.mu.Unlock()

	if wasArmed {
		g.interceptor.Disable()
	}
}

// Armed reports whether the guard is active.
func (g *Guard) Armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.armed
}

// PromptOpen reports whether an exit confirmation is showing.
func (g *Guard) PromptOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.promptOpen
}

// Input reports whether an input event is allowed.
func (g *Guard) Input(ev InputEvent) bool {
	g.mu.Lock()
	armed := g.armed
	g.mu.Unlock()

	if !armed || ev.Target == g.exempt || !suppressed[ev.Kind] {
		return true
	}
	if g.recorder != nil {
		g.recorder.RecordViolation(ev)
	}
	return false
}

// Back handles a back gesture. While armed it never navigates.
func (g *Guard) Back() BackDecision {
	g.mu.Lock()
	if !g.armed {
		g.mu.Unlock()
		return BackDecision{Navigate: true}
	}
	g.promptOpen = true
	g.mu.Unlock()

	if g.onPrompt != nil {
		g.onPrompt()
	}
	return BackDecision{Prompt: true}
}

// BeforeUnload reports whether the platform should warn about unsaved progress.
func (g *Guard) BeforeUnload() bool {
	return g.Armed()
}

// ConfirmExit closes the prompt. It returns true when the caller must force a submission.
func (g *Guard) ConfirmExit() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.armed || !g.promptOpen {
		return false
	}
	g.promptOpen = false
	return true
}

// CancelExit closes the prompt and keeps the session running.
func (g *Guard) CancelExit() {
	g.mu.Lock()
	g.promptOpen = false
	g.mu.Unlock()
}
