package guard

import "testing"

type fakeInterceptor struct {
	enabled  bool
	handlers Handlers
	enables  int
	disables int
}

func (f *fakeInterceptor) Enable(h Handlers) {
	f.enabled = true
	f.handlers = h
	f.enables++
}

func (f *fakeInterceptor) Disable() {
	f.enabled = false
	f.handlers = Handlers{}
	f.disables++
}

type violations struct {
	events []InputEvent
}

func (v *violations) RecordViolation(ev InputEvent) { v.events = append(v.events, ev) }

func TestArmedGuardSuppressesInputExceptReportField(t *testing.T) {
	fi := &fakeInterceptor{}
	rec := &violations{}
	g := New(fi, Options{Recorder: rec})
	g.Arm()

	if !fi.enabled {
		t.Fatalf("expected interceptor enabled")
	}
	for _, kind := range []string{InputContextMenu, InputSelectStart, InputCopy, InputCut, InputPaste, InputSelectAll} {
		if fi.handlers.Input(InputEvent{Kind: kind, Target: "question-text"}) {
			t.Fatalf("expected %s suppressed", kind)
		}
		if !fi.handlers.Input(InputEvent{Kind: kind, Target: DefaultExemptField}) {
			t.Fatalf("expected %s allowed in report field", kind)
		}
	}
	if !g.Input(InputEvent{Kind: "keydown"}) {
		t.Fatalf("expected unrelated input allowed")
	}
	if len(rec.events) != 6 {
		t.Fatalf("expected 6 recorded violations, got %d", len(rec.events))
	}
}

func TestBackPromptsAndConfirmRequestsSubmission(t *testing.T) {
	prompts := 0
	g := New(&fakeInterceptor{}, Options{OnPrompt: func() { prompts++ }})
	g.Arm()

	if g.ConfirmExit() {
		t.Fatalf("confirm without prompt must not force submission")
	}
	d := g.Back()
	if !d.Prompt || d.Navigate {
		t.Fatalf("expected prompt without navigation, got %+v", d)
	}
	if prompts != 1 || !g.PromptOpen() {
		t.Fatalf("expected prompt open")
	}
	g.CancelExit()
	if g.PromptOpen() {
		t.Fatalf("expected prompt closed after cancel")
	}
	g.Back()
	if !g.ConfirmExit() {
		t.Fatalf("expected confirm to force submission")
	}
	if g.PromptOpen() {
		t.Fatalf("expected prompt closed after confirm")
	}
}

func TestDisarmIsImmediateAndIrreversible(t *testing.T) {
	fi := &fakeInterceptor{}
	g := New(fi, Options{})
	g.Arm()
	if !g.BeforeUnload() {
		t.Fatalf("expected unload warning while armed")
	}

	g.Disarm()
	if fi.enabled || fi.disables != 1 {
		t.Fatalf("expected interceptor disabled once")
	}
	if g.BeforeUnload() {
		t.Fatalf("expected no unload warning after disarm")
	}
	if d := g.Back(); !d.Navigate || d.Prompt {
		t.Fatalf("expected bare navigation after disarm, got %+v", d)
	}
	if !g.Input(InputEvent{Kind: InputCopy}) {
		t.Fatalf("expected copy allowed after disarm")
	}

	g.Arm()
	if g.Armed() || fi.enables != 1 {
		t.Fatalf("expected arm after disarm to be ignored")
	}
}

func TestHubReplaysStateToLateAttachers(t *testing.T) {
	hub := NewHub()
	g := New(hub, Options{})
	g.Arm()

	late := &fakeInterceptor{}
	detach := hub.Attach(late)
	if !late.enabled || late.handlers.Back == nil {
		t.Fatalf("expected late attacher enabled with handlers")
	}
	if d := late.handlers.Back(); !d.Prompt {
		t.Fatalf("expected handlers routed to guard")
	}

	detach()
	g.Disarm()
	if !late.enabled {
		t.Fatalf("detached interceptor must not be touched")
	}

	other := &fakeInterceptor{}
	hub.Attach(other)
	if other.enabled || other.disables != 1 {
		t.Fatalf("expected attacher after disarm to be disabled")
	}
}
