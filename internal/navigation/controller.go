// Package navigation tracks the participant's position and answers inside a competition.
package navigation

import (
	"fmt"
	"time"

	"competition-session-service/internal/domain"
)

// Progress is a computed completion metric.
type Progress struct {
	Answered int `json:"answered"`
	Total    int `json:"total"`
	Percent  int `json:"percent"`
}

func newProgress(answered, total int) Progress {
	p := Progress{Answered: answered, Total: total}
	if total > 0 {
		p.Percent = answered * 100 / total
	}
	return p
}

// Controller is not safe for concurrent use; the session engine owns it.
type Controller struct {
	session  domain.CompetitionSession
	tabs     []domain.CourseTab
	answers  domain.AnswerMap
	course   int
	question int
}

// New starts at the first question of the first course with no answers.
func New(session domain.CompetitionSession) *Controller {
	return &Controller{
		session: session,
		tabs:    session.Tabs(),
		answers: make(domain.AnswerMap),
	}
}

// SelectAnswer upserts the ordinal for a question. Repeating a call is a no-op.
func (c *Controller) SelectAnswer(questionID string, ordinal int) error {
	q, ok := c.session.Question(questionID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownQuestion, questionID)
	}
	if ordinal < 1 || ordinal > len(q.Options) {
		return fmt.Errorf("%w: %d not in 1..%d", domain.ErrInvalidOption, ordinal, len(q.Options))
	}
	c.answers[questionID] = ordinal
	return nil
}

// GoToQuestion moves inside the current course. Out of range is rejected.
func (c *Controller) GoToQuestion(index int) bool {
	if index < 0 || index >= c.tabs[c.course].QuestionCount() {
		return false
	}
	c.question = index
	return true
}

// GoToCourse jumps to the first question of a course. Out of range is rejected.
func (c *Controller) GoToCourse(index int) bool {
	if index < 0 || index >= len(c.tabs) {
		return false
	}
	c.course = index
	c.question = 0
	return true
}

// Advance moves forward, entering the next course from its first question.
// At the final position it does nothing; submitting is an explicit action.
func (c *Controller) Advance() bool {
	if c.question+1 < c.tabs[c.course].QuestionCount() {
		c.question++
		return true
	}
	if c.course+1 < len(c.tabs) {
		c.course++
		c.question = 0
		return true
	}
	return false
}

// Retreat moves back, entering the previous course at its last question.
func (c *Controller) Retreat() bool {
	if c.question > 0 {
		c.question--
		return true
	}
	if c.course > 0 {
		c.course--
		c.question = c.tabs[c.course].QuestionCount() - 1
		return true
	}
	return false
}

// IsFinalPosition reports whether the cursor is on the last question of the last course.
func (c *Controller) IsFinalPosition() bool {
	return c.course == len(c.tabs)-1 && c.question == c.tabs[c.course].QuestionCount()-1
}

// Position returns the current course and question indexes.
func (c *Controller) Position() (course, question int) {
	return c.course, c.question
}

// CurrentQuestion returns the question under the cursor.
func (c *Controller) CurrentQuestion() domain.Question {
	q, _ := c.session.Question(c.tabs[c.course].QuestionIDs[c.question])
	return q
}

// Answers returns a copy of the answer map.
func (c *Controller) Answers() domain.AnswerMap {
	return c.answers.Clone()
}

// Tabs returns the course tabs.
func (c *Controller) Tabs() []domain.CourseTab {
	return c.tabs
}

// CourseProgress counts answered questions of one course.
func (c *Controller) CourseProgress(index int) Progress {
	if index < 0 || index >= len(c.tabs) {
		return Progress{}
	}
	answered := 0
	for _, id := range c.tabs[index].QuestionIDs {
		if c.answers[id] > 0 {
			answered++
		}
	}
	return newProgress(answered, c.tabs[index].QuestionCount())
}

// OverallProgress counts answered questions across every course.
func (c *Controller) OverallProgress() Progress {
	answered, total := 0, 0
	for i := range c.tabs {
		p := c.CourseProgress(i)
		answered += p.Answered
		total += p.Total
	}
	return newProgress(answered, total)
}

// Restore resumes from a snapshot. Entries that do not fit the session are dropped
// and an invalid position falls back to the start.
func (c *Controller) Restore(s domain.ProgressSnapshot) {
	c.answers = make(domain.AnswerMap, len(s.Answers))
	for id, ordinal := range s.Answers {
		q, ok := c.session.Question(id)
		if !ok || ordinal < 1 || ordinal > len(q.Options) {
			continue
		}
		c.answers[id] = ordinal
	}
	c.course, c.question = 0, 0
	if s.CurrentCourseIndex >= 0 && s.CurrentCourseIndex < len(c.tabs) {
		tab := c.tabs[s.CurrentCourseIndex]
		if s.CurrentQuestionIndex >= 0 && s.CurrentQuestionIndex < tab.QuestionCount() {
			c.course, c.question = s.CurrentCourseIndex, s.CurrentQuestionIndex
		}
	}
}

// Snapshot captures the current state for persistence.
func (c *Controller) Snapshot(remaining int, savedAt time.Time) domain.ProgressSnapshot {
	return domain.ProgressSnapshot{
		Answers:              c.answers.Clone(),
		CurrentCourseIndex:   c.course,
		CurrentQuestionIndex: c.question,
		RemainingSeconds:     remaining,
		SavedAt:              savedAt,
	}
}
