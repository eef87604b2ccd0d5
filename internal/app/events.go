package app

import (
	"competition-session-service/internal/domain"
	"competition-session-service/internal/mathsplit"
	"competition-session-service/internal/navigation"
)

// State of a competition engine.
type State string

const (
	StateLoading    State = "loading"
	StateActive     State = "active"
	StateSubmitting State = "submitting"
	StateSubmitted  State = "submitted"
	StateAbandoned  State = "abandoned"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSubmitted || s == StateAbandoned
}

// EventType names engine events.
type EventType string

const (
	EventView             EventType = "view"
	EventTick             EventType = "tick"
	EventExpired          EventType = "expired"
	EventExitPrompt       EventType = "exit_prompt"
	EventSubmitting       EventType = "submitting"
	EventSubmissionFailed EventType = "submission_failed"
	EventSubmitted        EventType = "submitted"
	EventAbandoned        EventType = "abandoned"
)

// Event is broadcast to subscribers.
type Event struct {
	Type      EventType                `json:"type"`
	Remaining int                      `json:"remaining"`
	Reason    domain.SubmitReason      `json:"reason,omitempty"`
	Error     string                   `json:"error,omitempty"`
	Retryable bool                     `json:"retryable,omitempty"`
	Result    *domain.SubmissionResult `json:"result,omitempty"`
	View      *SessionView             `json:"view,omitempty"`
}

// CourseView is a course tab with its completion.
type CourseView struct {
	CourseCode    string              `json:"courseCode"`
	QuestionCount int                 `json:"questionCount"`
	Progress      navigation.Progress `json:"progress"`
}

// QuestionView is the current question split into literal and math segments.
type QuestionView struct {
	ID         string                 `json:"id"`
	CourseCode string                 `json:"courseCode"`
	Text       []mathsplit.Rendered   `json:"text"`
	Options    [][]mathsplit.Rendered `json:"options"`
	Image      string                 `json:"image,omitempty"`
	Selected   int                    `json:"selected"`
}

// SessionView is everything a client needs to draw the competition.
type SessionView struct {
	CompetitionID    string              `json:"competitionId"`
	Name             string              `json:"name"`
	State            State               `json:"state"`
	Courses          []CourseView        `json:"courses"`
	CurrentCourse    int                 `json:"currentCourse"`
	CurrentQuestion  int                 `json:"currentQuestion"`
	Question         QuestionView        `json:"question"`
	Overall          navigation.Progress `json:"overall"`
	Answers          domain.AnswerMap    `json:"answers"`
	RemainingSeconds int                 `json:"remainingSeconds"`
	TotalSeconds     int                 `json:"totalSeconds"`
	FinalPosition    bool                `json:"finalPosition"`
	ExitPrompt       bool                `json:"exitPrompt"`
	GuardActive      bool                `json:"guardActive"`
}
