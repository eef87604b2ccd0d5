package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"competition-session-service/internal/app"
	"competition-session-service/internal/domain"
	"github.com/rs/zerolog"
)

const maxPayloadBytes = 4 << 20

// APIHandler serves the plain HTTP side: staging the session input handed off by
// the selection surface, explicit abandonment and question reports.
type APIHandler struct {
	service *app.CompetitionService
	log     zerolog.Logger
}

func NewAPIHandler(service *app.CompetitionService, log zerolog.Logger) *APIHandler {
	return &APIHandler{
		service: service,
		log:     log.With().Str("component", "api_handler").Logger(),
	}
}

// Register mounts the routes on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /competitions/{id}/payload", h.stagePayload)
	mux.HandleFunc("DELETE /competitions/{id}", h.abandon)
	mux.HandleFunc("POST /competitions/{id}/reports", h.report)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}

func (h *APIHandler) stagePayload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := h.service.Stage(r.Context(), id, raw); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"competitionId": id})
}

func (h *APIHandler) abandon(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Abandon(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) report(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var p reportPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, maxPayloadBytes)).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	engine, ok := h.service.Get(id)
	if !ok {
		h.fail(w, domain.ErrCompetitionNotFound)
		return
	}
	if err := engine.Report(r.Context(), p.QuestionID, p.Description); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *APIHandler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("request failed")
	}
	writeError(w, status, errorCode(err), err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidSession):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrCompetitionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownQuestion), errors.Is(err, app.ErrEmptyReport):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadySubmitted), errors.Is(err, domain.ErrSubmissionInProgress),
		errors.Is(err, app.ErrAlreadyRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, errorPayload{Code: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
