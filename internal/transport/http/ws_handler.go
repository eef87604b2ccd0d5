package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"competition-session-service/internal/app"
	"competition-session-service/internal/domain"
	"competition-session-service/internal/guard"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait   = 10 * time.Second
	sendBuffer  = 32
	msgError    = "error"
	msgInvalid  = "invalid_session"
	msgView     = "view"
	msgGuard    = "guard"
	msgBack     = "back_decision"
	msgUnload   = "unload_decision"
	msgInput    = "input_decision"
	msgReported = "report_sent"
)

type WSHandler struct {
	service  *app.CompetitionService
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewWSHandler accepts every origin unless allowedOrigins is given.
func NewWSHandler(service *app.CompetitionService, log zerolog.Logger, allowedOrigins ...string) *WSHandler {
	return &WSHandler{
		service:  service,
		upgrader: buildUpgrader(allowedOrigins),
		log:      log.With().Str("component", "ws_handler").Logger(),
	}
}

func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	Option     int    `json:"option"`
}

type indexPayload struct {
	Index int `json:"index"`
}

type inputPayload struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
}

type reportPayload struct {
	QuestionID  string `json:"questionId"`
	Description string `json:"description"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type guardPayload struct {
	Active bool `json:"active"`
}

type decisionPayload struct {
	Warn     bool `json:"warn,omitempty"`
	Allowed  bool `json:"allowed,omitempty"`
	Prompt   bool `json:"prompt,omitempty"`
	Navigate bool `json:"navigate,omitempty"`
}

// connection is the per-socket outbound side. The send channel is never closed;
// pushes give up once the connection is closing or the writer is gone.
type connection struct {
	send       chan outboundMessage[any]
	closing    chan struct{}
	writerDone chan struct{}
}

func (c *connection) push(typ string, payload any) {
	select {
	case c.send <- outboundMessage[any]{Type: typ, Payload: payload}:
	case <-c.closing:
	case <-c.writerDone:
	}
}

func (c *connection) pushError(err error) {
	c.push(msgError, errorPayload{Code: errorCode(err), Message: err.Error()})
}

// Enable and Disable let the connection act as the guard's interception capability.
func (c *connection) Enable(guard.Handlers) { c.push(msgGuard, guardPayload{Active: true}) }
func (c *connection) Disable()              { c.push(msgGuard, guardPayload{Active: false}) }

// ServeWS upgrades HTTP requests to websockets and wires them into one competition engine.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	competitionID := r.URL.Query().Get("competitionId")
	if competitionID == "" {
		http.Error(w, "missing competitionId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()
	log := h.log.With().Str("competition_id", competitionID).Logger()

	engine, err := h.service.Open(r.Context(), competitionID)
	if err != nil {
		typ := msgError
		if errors.Is(err, domain.ErrInvalidSession) {
			typ = msgInvalid
		}
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: typ, Payload: errorPayload{Code: errorCode(err), Message: err.Error()}})
		return
	}

	c := &connection{
		send:       make(chan outboundMessage[any], sendBuffer),
		closing:    make(chan struct{}),
		writerDone: make(chan struct{}),
	}

	go func() {
		defer close(c.writerDone)
		for {
			select {
			case msg := <-c.send:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(msg); err != nil {
					log.Debug().Err(err).Msg("ws write error")
					return
				}
			case <-c.closing:
				return
			}
		}
	}()

	// Subscribe before the initial view so no event is lost in between.
	events, cancel := engine.Subscribe()
	eventsDone := make(chan struct{})
	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				c.push(string(ev.Type), ev)
			case <-c.closing:
				return
			}
		}
	}()

	if view, err := engine.View(r.Context()); err == nil {
		c.push(msgView, view)
	}
	detach := engine.AttachInterceptor(c)

	ctx, stop := context.WithCancel(context.Background())
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(ctx, engine, c, inbound)
	}

	stop()
	detach()
	close(c.closing)
	cancel()
	<-eventsDone
	<-c.writerDone
}

func (h *WSHandler) dispatch(ctx context.Context, engine *app.Engine, c *connection, in inboundMessage) {
	switch in.Type {
	case "select_answer":
		var p answerPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			c.push(msgError, errorPayload{Code: "bad_request", Message: "invalid answer payload"})
			return
		}
		if err := engine.SelectAnswer(ctx, p.QuestionID, p.Option); err != nil {
			c.pushError(err)
		}
	case "go_to_question", "go_to_course":
		var p indexPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			c.push(msgError, errorPayload{Code: "bad_request", Message: "invalid index payload"})
			return
		}
		move := engine.GoToQuestion
		if in.Type == "go_to_course" {
			move = engine.GoToCourse
		}
		h.navigate(ctx, engine, c, func(ctx context.Context) (bool, error) { return move(ctx, p.Index) })
	case "advance":
		h.navigate(ctx, engine, c, engine.Advance)
	case "retreat":
		h.navigate(ctx, engine, c, engine.Retreat)
	case "submit":
		// The outcome arrives as submitted/submission_failed events.
		go func() {
			if _, err := engine.Submit(ctx, domain.ReasonManual); err != nil && !isSubmissionFailure(err) {
				c.pushError(err)
			}
		}()
	case "back":
		d := engine.Back()
		c.push(msgBack, decisionPayload{Prompt: d.Prompt, Navigate: d.Navigate})
	case "confirm_exit":
		go func() {
			if _, err := engine.ConfirmExit(ctx); err != nil && !isSubmissionFailure(err) {
				c.pushError(err)
			}
		}()
	case "cancel_exit":
		engine.CancelExit()
		if view, err := engine.View(ctx); err == nil {
			c.push(msgView, view)
		}
	case "before_unload":
		c.push(msgUnload, decisionPayload{Warn: engine.BeforeUnload()})
	case "input":
		var p inputPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			c.push(msgError, errorPayload{Code: "bad_request", Message: "invalid input payload"})
			return
		}
		c.push(msgInput, decisionPayload{Allowed: engine.Input(guard.InputEvent{Kind: p.Kind, Target: p.Target})})
	case "report":
		var p reportPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			c.push(msgError, errorPayload{Code: "bad_request", Message: "invalid report payload"})
			return
		}
		go func() {
			if err := engine.Report(ctx, p.QuestionID, p.Description); err != nil {
				c.pushError(err)
				return
			}
			c.push(msgReported, reportPayload{QuestionID: p.QuestionID})
		}()
	default:
		c.push(msgError, errorPayload{Code: "bad_request", Message: "unsupported message type"})
	}
}

// navigate resends the view when the move was rejected so the client stays in sync.
func (h *WSHandler) navigate(ctx context.Context, engine *app.Engine, c *connection, move func(context.Context) (bool, error)) {
	moved, err := move(ctx)
	if err != nil {
		c.pushError(err)
		return
	}
	if !moved {
		if view, err := engine.View(ctx); err == nil {
			c.push(msgView, view)
		}
	}
}

func isSubmissionFailure(err error) bool {
	var subErr *domain.SubmissionError
	return errors.As(err, &subErr)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidSession):
		return "invalid_session"
	case errors.Is(err, domain.ErrSubmissionInProgress):
		return "submission_in_progress"
	case errors.Is(err, domain.ErrAlreadySubmitted):
		return "already_submitted"
	case errors.Is(err, domain.ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, domain.ErrTimeExpired):
		return "time_expired"
	case errors.Is(err, domain.ErrUnknownQuestion):
		return "unknown_question"
	case errors.Is(err, domain.ErrInvalidOption):
		return "invalid_option"
	case errors.Is(err, domain.ErrNoExitPending):
		return "no_exit_pending"
	case errors.Is(err, domain.ErrCompetitionNotFound):
		return "not_found"
	case errors.Is(err, app.ErrEmptyReport):
		return "bad_request"
	case errors.Is(err, app.ErrAlreadyRunning):
		return "already_running"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}
