package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"competition-session-service/internal/domain"
	"competition-session-service/internal/guard"
	"competition-session-service/internal/loader"
	"competition-session-service/internal/mathsplit"
	"competition-session-service/internal/navigation"
	"competition-session-service/internal/submission"
	"competition-session-service/internal/timer"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	persistTimeout   = 2 * time.Second
	violationTimeout = time.Second
	subscriberBuffer = 16
)

// ErrEmptyReport rejects a report without a description.
var ErrEmptyReport = errors.New("report description required")

// Deps are the collaborators of an engine. Reporter, Violations and Renderer are optional.
type Deps struct {
	Progress    ProgressStore
	Payloads    PayloadStore
	Submitter   submission.Submitter
	Reporter    Reporter
	Violations  ViolationSink
	Renderer    mathsplit.Renderer
	Clock       timer.Clock
	Logger      zerolog.Logger
	ExemptField string
}

type submitOutcome struct {
	result domain.SubmissionResult
	err    error
}

// Engine runs one competition. Answers, navigation, timer ticks and submission
// results are applied on a single loop goroutine, in arrival order.
type Engine struct {
	id      string
	session domain.CompetitionSession
	deps    Deps
	log     zerolog.Logger

	nav   *navigation.Controller
	timer *timer.Timer
	guard *guard.Guard
	hub   *guard.Hub
	coord *submission.Coordinator

	ctx    context.Context
	cancel context.CancelFunc

	cmds       chan func()
	submitDone chan submitOutcome
	quit       chan struct{}
	loopDone   chan struct{}
	done       chan struct{}
	quitOnce   sync.Once
	doneOnce   sync.Once

	// owned by the loop goroutine
	state   State
	waiters []chan submitOutcome

	mu          sync.Mutex
	subscribers map[chan Event]struct{}
}

// Open loads the staged payload for competitionID, resumes any saved progress and
// starts the countdown. A missing or invalid payload fails with domain.ErrInvalidSession
// and nothing is persisted.
func Open(ctx context.Context, competitionID string, deps Deps) (*Engine, error) {
	if deps.Clock == nil {
		deps.Clock = timer.RealClock{}
	}
	log := deps.Logger.With().Str("component", "engine").Str("competition_id", competitionID).Logger()

	raw, err := deps.Payloads.Get(ctx, competitionID)
	if errors.Is(err, domain.ErrCompetitionNotFound) {
		return nil, fmt.Errorf("%w: no payload staged for %s", domain.ErrInvalidSession, competitionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get session payload: %w", err)
	}
	session, err := loader.Load(raw)
	if err != nil {
		return nil, err
	}
	if session.CompetitionID() != competitionID {
		return nil, fmt.Errorf("%w: payload is for competition %s", domain.ErrInvalidSession, session.CompetitionID())
	}

	e := newEngine(session, deps, log)

	remaining := session.TotalSeconds()
	snap, ok, err := deps.Progress.Load(ctx, competitionID)
	switch {
	case errors.Is(err, domain.ErrStorageCorruption):
		log.Warn().Err(err).Msg("Discarding corrupted progress, starting fresh")
	case err != nil:
		return nil, fmt.Errorf("load progress: %w", err)
	case ok:
		e.nav.Restore(snap)
		remaining = clamp(snap.RemainingSeconds, 0, session.TotalSeconds())
		log.Info().Int("remaining", remaining).Int("answers", len(snap.Answers)).Msg("Resuming saved progress")
	}

	go e.run()

	err = e.do(ctx, func() error {
		e.state = StateActive
		e.guard.Arm()
		return e.timer.Start(remaining)
	})
	if err != nil {
		e.Close()
		return nil, err
	}
	log.Info().Int("questions", len(session.Questions())).Int("remaining", remaining).Msg("Competition started")
	return e, nil
}

func newEngine(session domain.CompetitionSession, deps Deps, log zerolog.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		id:          session.CompetitionID(),
		session:     session,
		deps:        deps,
		log:         log,
		nav:         navigation.New(session),
		hub:         guard.NewHub(),
		ctx:         ctx,
		cancel:      cancel,
		cmds:        make(chan func()),
		submitDone:  make(chan submitOutcome),
		quit:        make(chan struct{}),
		loopDone:    make(chan struct{}),
		done:        make(chan struct{}),
		state:       StateLoading,
		subscribers: make(map[chan Event]struct{}),
	}
	e.timer = timer.New(deps.Clock, e.onTimer)

	opts := guard.Options{
		ExemptField: deps.ExemptField,
		OnPrompt:    func() { e.publish(Event{Type: EventExitPrompt}) },
	}
	if deps.Violations != nil {
		opts.Recorder = violationRecorder{e: e}
	}
	e.guard = guard.New(e.hub, opts)

	e.coord = submission.New(submission.Config{
		Submitter: deps.Submitter,
		Progress:  deps.Progress,
		Payloads:  deps.Payloads,
		Guard:     e.guard,
		Logger:    log,
		Now:       deps.Clock.Now,
	})
	return e
}

// ID returns the competition id.
func (e *Engine) ID() string { return e.id }

// Session returns the loaded competition.
func (e *Engine) Session() domain.CompetitionSession { return e.session }

// Done is closed once the competition is submitted or abandoned.
func (e *Engine) Done() <-chan struct{} { return e.done }

// IsDone reports whether Done is closed.
func (e *Engine) IsDone() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

func (e *Engine) run() {
	defer close(e.loopDone)
	for {
		select {
		case <-e.quit:
			e.timer.Stop()
			return
		case fn := <-e.cmds:
			fn()
		case <-e.timer.C():
			e.timer.Fire()
		case out := <-e.submitDone:
			e.finishSubmission(out)
		}
	}
}

// do runs fn on the loop goroutine and waits for its result.
func (e *Engine) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case e.cmds <- func() { reply <- fn() }:
	case <-e.loopDone:
		return domain.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) onTimer(ev timer.Event) {
	switch ev.Kind {
	case timer.EventTick:
		e.persist()
		e.publish(Event{Type: EventTick, Remaining: ev.Remaining})
	case timer.EventExpired:
		e.log.Info().Msg("Time expired, submitting automatically")
		e.publish(Event{Type: EventExpired})
		if _, err := e.beginSubmission(domain.ReasonTimerExpired); err != nil {
			e.log.Debug().Err(err).Msg("Automatic submission skipped")
		}
	}
}

// mutable reports why answers and navigation are currently refused, if they are.
func (e *Engine) mutable() error {
	switch e.state {
	case StateSubmitting:
		return domain.ErrSubmissionInProgress
	case StateSubmitted:
		return domain.ErrAlreadySubmitted
	case StateAbandoned, StateLoading:
		return domain.ErrSessionClosed
	}
	if e.timer.State() == timer.Expired {
		return domain.ErrTimeExpired
	}
	return nil
}

// SelectAnswer records the 1-based option for a question.
func (e *Engine) SelectAnswer(ctx context.Context, questionID string, ordinal int) error {
	return e.do(ctx, func() error {
		if err := e.mutable(); err != nil {
			return err
		}
		if err := e.nav.SelectAnswer(questionID, ordinal); err != nil {
			return err
		}
		e.changed()
		return nil
	})
}

// GoToQuestion jumps inside the current course; false means the index was rejected.
func (e *Engine) GoToQuestion(ctx context.Context, index int) (bool, error) {
	return e.navigate(ctx, func() bool { return e.nav.GoToQuestion(index) })
}

// GoToCourse jumps to the first question of a course.
func (e *Engine) GoToCourse(ctx context.Context, index int) (bool, error) {
	return e.navigate(ctx, func() bool { return e.nav.GoToCourse(index) })
}

// Advance moves to the next question, crossing into the next course when needed.
func (e *Engine) Advance(ctx context.Context) (bool, error) {
	return e.navigate(ctx, e.nav.Advance)
}

// Retreat moves to the previous question.
func (e *Engine) Retreat(ctx context.Context) (bool, error) {
	return e.navigate(ctx, e.nav.Retreat)
}

func (e *Engine) navigate(ctx context.Context, move func() bool) (bool, error) {
	moved := false
	err := e.do(ctx, func() error {
		if err := e.mutable(); err != nil {
			return err
		}
		moved = move()
		if moved {
			e.changed()
		}
		return nil
	})
	return moved, err
}

func (e *Engine) changed() {
	e.persist()
	v := e.view()
	e.publish(Event{Type: EventView, View: &v})
}

// Submit sends the competition to the scoring service and waits for the outcome.
// The wait is not bounded by ctx once the request is out: cancelling ctx only
// stops waiting.
func (e *Engine) Submit(ctx context.Context, reason domain.SubmitReason) (domain.SubmissionResult, error) {
	var wait chan submitOutcome
	err := e.do(ctx, func() error {
		w, err := e.beginSubmission(reason)
		wait = w
		return err
	})
	if err != nil {
		return domain.SubmissionResult{}, err
	}
	select {
	case out := <-wait:
		return out.result, out.err
	case <-e.loopDone:
		return domain.SubmissionResult{}, domain.ErrSessionClosed
	case <-ctx.Done():
		return domain.SubmissionResult{}, ctx.Err()
	}
}

func (e *Engine) beginSubmission(reason domain.SubmitReason) (chan submitOutcome, error) {
	switch e.state {
	case StateSubmitting:
		return nil, domain.ErrSubmissionInProgress
	case StateSubmitted:
		return nil, domain.ErrAlreadySubmitted
	case StateAbandoned, StateLoading:
		return nil, domain.ErrSessionClosed
	}
	e.state = StateSubmitting
	answers := e.nav.Answers()
	elapsed := e.session.TotalSeconds() - e.timer.Remaining()
	e.publish(Event{Type: EventSubmitting, Reason: reason})
	e.log.Info().Str("reason", string(reason)).Int("elapsed", elapsed).Msg("Submitting competition")

	go func() {
		res, err := e.coord.Submit(e.ctx, e.session, answers, elapsed, reason)
		select {
		case e.submitDone <- submitOutcome{result: res, err: err}:
		case <-e.loopDone:
		}
	}()

	w := make(chan submitOutcome, 1)
	e.waiters = append(e.waiters, w)
	return w, nil
}

func (e *Engine) finishSubmission(out submitOutcome) {
	for _, w := range e.waiters {
		w <- out
	}
	e.waiters = nil

	if out.err != nil {
		e.state = StateActive
		e.persist()
		ev := Event{Type: EventSubmissionFailed, Error: out.err.Error()}
		var subErr *domain.SubmissionError
		if errors.As(out.err, &subErr) {
			ev.Reason = subErr.Reason
			ev.Retryable = subErr.Retryable()
		}
		e.publish(ev)
		return
	}

	e.state = StateSubmitted
	e.timer.Stop()
	res := out.result
	e.publish(Event{Type: EventSubmitted, Reason: res.Reason, Result: &res})
	e.markDone()
}

// Abandon discards the attempt: the countdown stops, guards are lifted and the
// saved progress and staged payload are deleted.
func (e *Engine) Abandon(ctx context.Context) error {
	return e.do(ctx, func() error {
		switch e.state {
		case StateAbandoned:
			return nil
		case StateSubmitted:
			return domain.ErrAlreadySubmitted
		case StateSubmitting:
			return domain.ErrSubmissionInProgress
		}
		e.state = StateAbandoned
		e.timer.Stop()
		e.guard.Disarm()
		if err := e.deps.Progress.Clear(ctx, e.id); err != nil {
			e.log.Error().Err(err).Msg("Clear progress on abandon failed")
		}
		if err := e.deps.Payloads.Delete(ctx, e.id); err != nil {
			e.log.Error().Err(err).Msg("Delete payload on abandon failed")
		}
		e.publish(Event{Type: EventAbandoned})
		e.markDone()
		e.log.Info().Msg("Competition abandoned")
		return nil
	})
}

// Back handles the platform back gesture.
func (e *Engine) Back() guard.BackDecision {
	return e.guard.Back()
}

// ConfirmExit turns a confirmed exit prompt into a forced submission.
func (e *Engine) ConfirmExit(ctx context.Context) (domain.SubmissionResult, error) {
	if !e.guard.ConfirmExit() {
		return domain.SubmissionResult{}, domain.ErrNoExitPending
	}
	return e.Submit(ctx, domain.ReasonForcedExit)
}

// CancelExit dismisses the exit prompt.
func (e *Engine) CancelExit() {
	e.guard.CancelExit()
}

// BeforeUnload reports whether leaving the page should be warned about.
func (e *Engine) BeforeUnload() bool {
	return e.guard.BeforeUnload()
}

// Input reports whether a clipboard/selection event is allowed.
func (e *Engine) Input(ev guard.InputEvent) bool {
	return e.guard.Input(ev)
}

// AttachInterceptor connects a client's interception capability to the guard.
func (e *Engine) AttachInterceptor(i guard.Interceptor) (detach func()) {
	return e.hub.Attach(i)
}

// Report forwards a question report. It never touches session state.
func (e *Engine) Report(ctx context.Context, questionID, description string) error {
	if _, ok := e.session.Question(questionID); !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownQuestion, questionID)
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return ErrEmptyReport
	}
	if e.deps.Reporter == nil {
		return errors.New("report endpoint not configured")
	}
	return e.deps.Reporter.Report(ctx, domain.Report{
		CompetitionID: e.id,
		QuestionID:    questionID,
		Description:   description,
	})
}

// View returns the current state of the competition.
func (e *Engine) View(ctx context.Context) (SessionView, error) {
	var v SessionView
	err := e.do(ctx, func() error {
		v = e.view()
		return nil
	})
	return v, err
}

func (e *Engine) view() SessionView {
	tabs := e.nav.Tabs()
	courses := make([]CourseView, len(tabs))
	for i, t := range tabs {
		courses[i] = CourseView{
			CourseCode:    t.CourseCode,
			QuestionCount: t.QuestionCount(),
			Progress:      e.nav.CourseProgress(i),
		}
	}
	course, question := e.nav.Position()
	answers := e.nav.Answers()
	return SessionView{
		CompetitionID:    e.id,
		Name:             e.session.Name(),
		State:            e.state,
		Courses:          courses,
		CurrentCourse:    course,
		CurrentQuestion:  question,
		Question:         e.questionView(e.nav.CurrentQuestion(), answers),
		Overall:          e.nav.OverallProgress(),
		Answers:          answers,
		RemainingSeconds: e.timer.Remaining(),
		TotalSeconds:     e.session.TotalSeconds(),
		FinalPosition:    e.nav.IsFinalPosition(),
		ExitPrompt:       e.guard.PromptOpen(),
		GuardActive:      e.guard.Armed(),
	}
}

func (e *Engine) questionView(q domain.Question, answers domain.AnswerMap) QuestionView {
	text, fallbacks := mathsplit.RenderAll(e.deps.Renderer, mathsplit.Split(q.Text))
	options := make([][]mathsplit.Rendered, len(q.Options))
	for i, opt := range q.Options {
		var n int
		options[i], n = mathsplit.RenderAll(e.deps.Renderer, mathsplit.Split(opt))
		fallbacks += n
	}
	if fallbacks > 0 {
		e.log.Debug().Str("question_id", q.ID).Int("fallbacks", fallbacks).Msg("Math rendered as raw text")
	}
	return QuestionView{
		ID:         q.ID,
		CourseCode: q.CourseCode,
		Text:       text,
		Options:    options,
		Image:      q.Image,
		Selected:   answers[q.ID],
	}
}

// persist writes the snapshot. Only an active competition is ever written.
func (e *Engine) persist() {
	if e.state != StateActive {
		return
	}
	snap := e.nav.Snapshot(e.timer.Remaining(), e.deps.Clock.Now().UTC())
	ctx, cancel := context.WithTimeout(e.ctx, persistTimeout)
	defer cancel()
	if err := e.deps.Progress.Save(ctx, e.id, snap); err != nil {
		e.log.Warn().Err(err).Msg("Save progress failed")
	}
}

// Subscribe returns a channel of engine events. The caller must invoke cancel.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	e.mu.Lock()
	e.subscribers[ch] = struct{}{}
	e.mu.Unlock()

	cancel := func() {
		e.mu.Lock()
		if _, ok := e.subscribers[ch]; ok {
			delete(e.subscribers, ch)
			close(ch)
		}
		e.mu.Unlock()
	}
	return ch, cancel
}

// publish drops the oldest queued event for a slow subscriber rather than block the loop.
func (e *Engine) publish(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for ch := range e.subscribers {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

func (e *Engine) markDone() {
	e.doneOnce.Do(func() { close(e.done) })
}

// Close stops the loop and releases subscribers. An outstanding submission is cancelled.
func (e *Engine) Close() {
	e.quitOnce.Do(func() {
		close(e.quit)
		<-e.loopDone
		e.cancel()
		e.mu.Lock()
		for ch := range e.subscribers {
			delete(e.subscribers, ch)
			close(ch)
		}
		e.mu.Unlock()
	})
}

type violationRecorder struct {
	e *Engine
}

func (r violationRecorder) RecordViolation(ev guard.InputEvent) {
	v := domain.Violation{
		ID:            uuid.NewString(),
		CompetitionID: r.e.id,
		Kind:          ev.Kind,
		Target:        ev.Target,
		RecordedAt:    r.e.deps.Clock.Now().UTC(),
	}
	ctx, cancel := context.WithTimeout(r.e.ctx, violationTimeout)
	defer cancel()
	if err := r.e.deps.Violations.Record(ctx, v); err != nil {
		r.e.log.Warn().Err(err).Str("kind", ev.Kind).Msg("Record violation failed")
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
