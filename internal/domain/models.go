package domain

import (
	"encoding/json"
	"time"
)

// SessionKind is the marker the selection collaborator writes into the transient payload.
const SessionKind = "competition"

// Question is a single multiple-choice item of a competition.
type Question struct {
	ID         string   `json:"id"`
	CourseCode string   `json:"courseCode"`
	Text       string   `json:"text"`
	Options    []string `json:"options"`
	Image      string   `json:"image,omitempty"`
}

// CourseTab groups the questions of one course in display order.
type CourseTab struct {
	CourseCode  string   `json:"courseCode"`
	QuestionIDs []string `json:"-"`
}

// QuestionCount is the number of questions on the tab.
func (t CourseTab) QuestionCount() int {
	return len(t.QuestionIDs)
}

// CompetitionSession is the validated, read-only competition an engine runs.
// Only the loader package builds one; the zero value is not usable.
type CompetitionSession struct {
	competitionID    string
	name             string
	totalTimeMinutes int
	selectedCourses  []string
	questions        []Question
	tabs             []CourseTab
	index            map[string]int
}

// NewCompetitionSession is used by the loader after validation.
func NewCompetitionSession(id, name string, totalTimeMinutes int, courses []string, questions []Question, tabs []CourseTab) CompetitionSession {
	index := make(map[string]int, len(questions))
	for i, q := range questions {
		index[q.ID] = i
	}
	return CompetitionSession{
		competitionID:    id,
		name:             name,
		totalTimeMinutes: totalTimeMinutes,
		selectedCourses:  append([]string(nil), courses...),
		questions:        append([]Question(nil), questions...),
		tabs:             tabs,
		index:            index,
	}
}

func (s CompetitionSession) CompetitionID() string { return s.competitionID }
func (s CompetitionSession) Name() string          { return s.name }
func (s CompetitionSession) TotalTimeMinutes() int { return s.totalTimeMinutes }

// TotalSeconds is the nominal session length.
func (s CompetitionSession) TotalSeconds() int { return s.totalTimeMinutes * 60 }

// SelectedCourses returns a copy of the declared course order.
func (s CompetitionSession) SelectedCourses() []string {
	return append([]string(nil), s.selectedCourses...)
}

// Questions returns a copy of the question list in payload order.
func (s CompetitionSession) Questions() []Question {
	return append([]Question(nil), s.questions...)
}

// Tabs returns the course tabs in selectedCourses order.
func (s CompetitionSession) Tabs() []CourseTab {
	out := make([]CourseTab, len(s.tabs))
	for i, t := range s.tabs {
		out[i] = CourseTab{CourseCode: t.CourseCode, QuestionIDs: append([]string(nil), t.QuestionIDs...)}
	}
	return out
}

// Question looks up a question by id.
func (s CompetitionSession) Question(id string) (Question, bool) {
	i, ok := s.index[id]
	if !ok {
		return Question{}, false
	}
	return s.questions[i], true
}

// AnswerMap maps question id to the selected 1-based option ordinal.
type AnswerMap map[string]int

// Clone returns an independent copy.
func (m AnswerMap) Clone() AnswerMap {
	out := make(AnswerMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ProgressSnapshot is the resumable state of an in-progress competition.
type ProgressSnapshot struct {
	Answers              AnswerMap `json:"answers"`
	CurrentCourseIndex   int       `json:"currentCourseIndex"`
	CurrentQuestionIndex int       `json:"currentQuestionIndex"`
	RemainingSeconds     int       `json:"remainingSeconds"`
	SavedAt              time.Time `json:"savedAt"`
}

// SubmittedAnswer is one entry of the submission payload; 0 means unanswered.
type SubmittedAnswer struct {
	QuestionID     string `json:"questionId"`
	SelectedOption int    `json:"selectedOption"`
}

// SubmissionPayload is sent to the scoring service.
type SubmissionPayload struct {
	SelectedCourses  []string          `json:"selectedCourses"`
	Answers          []SubmittedAnswer `json:"answers"`
	TimeUsedMinutes  int               `json:"timeUsedMinutes"`
	TotalTimeMinutes int               `json:"totalTimeMinutes"`
}

// SubmitReason records what triggered a submission.
type SubmitReason string

const (
	ReasonManual       SubmitReason = "manual"
	ReasonTimerExpired SubmitReason = "timer_expired"
	ReasonForcedExit   SubmitReason = "forced_exit"
)

// SubmissionResult is the scoring service's opaque response.
type SubmissionResult struct {
	CompetitionID string          `json:"competitionId"`
	Reason        SubmitReason    `json:"reason"`
	Record        json.RawMessage `json:"record,omitempty"`
	SubmittedAt   time.Time       `json:"submittedAt"`
}

// Report is a user complaint about a question, delivered outside the session state machine.
type Report struct {
	CompetitionID string `json:"competitionId,omitempty"`
	QuestionID    string `json:"questionId"`
	Description   string `json:"description"`
}

// Violation is a suppressed clipboard or selection attempt during an active session.
type Violation struct {
	ID            string    `json:"id"`
	CompetitionID string    `json:"competitionId"`
	Kind          string    `json:"kind"`
	Target        string    `json:"target,omitempty"`
	RecordedAt    time.Time `json:"recordedAt"`
}
