// Package loader validates the transient competition payload handed off by the
// selection surface and turns it into a domain.CompetitionSession.
package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"competition-session-service/internal/domain"
	govalidator "github.com/go-playground/validator/v10"
)

// flexID accepts ids written either as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number")
	}
	*f = flexID(n.String())
	return nil
}

type rawQuestion struct {
	ID         flexID   `json:"id" validate:"required"`
	CourseCode string   `json:"courseCode" validate:"required"`
	Text       string   `json:"text"`
	Options    []string `json:"options" validate:"min=1"`
	Image      string   `json:"image"`
}

type rawPayload struct {
	Kind             string        `json:"kind" validate:"required"`
	CompetitionID    flexID        `json:"competitionId" validate:"required"`
	Name             string        `json:"name"`
	TotalTimeMinutes int           `json:"totalTimeMinutes" validate:"gt=0"`
	SelectedCourses  []string      `json:"selectedCourses" validate:"min=1,unique,dive,required"`
	Questions        []rawQuestion `json:"questions" validate:"min=1,dive"`
}

var validate = newValidator()

func newValidator() *govalidator.Validate {
	v := govalidator.New()
	// Report json field names in validation errors.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Load validates raw and returns the session. Every failure wraps domain.ErrInvalidSession.
func Load(raw []byte) (domain.CompetitionSession, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return domain.CompetitionSession{}, fmt.Errorf("%w: payload absent", domain.ErrInvalidSession)
	}

	var p rawPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.CompetitionSession{}, fmt.Errorf("%w: %v", domain.ErrInvalidSession, err)
	}
	if p.Kind != domain.SessionKind {
		return domain.CompetitionSession{}, fmt.Errorf("%w: unexpected kind %q", domain.ErrInvalidSession, p.Kind)
	}
	if len(p.Questions) == 0 {
		return domain.CompetitionSession{}, fmt.Errorf("%w: no questions", domain.ErrInvalidSession)
	}
	if err := validate.Struct(p); err != nil {
		return domain.CompetitionSession{}, fmt.Errorf("%w: %s", domain.ErrInvalidSession, describe(err))
	}

	courses := make(map[string]bool, len(p.SelectedCourses))
	for _, c := range p.SelectedCourses {
		courses[c] = true
	}

	questions := make([]domain.Question, 0, len(p.Questions))
	seen := make(map[string]bool, len(p.Questions))
	for _, q := range p.Questions {
		id := string(q.ID)
		if seen[id] {
			return domain.CompetitionSession{}, fmt.Errorf("%w: duplicate question %q", domain.ErrInvalidSession, id)
		}
		if !courses[q.CourseCode] {
			return domain.CompetitionSession{}, fmt.Errorf("%w: question %q belongs to unselected course %q", domain.ErrInvalidSession, id, q.CourseCode)
		}
		seen[id] = true
		questions = append(questions, domain.Question{
			ID:         id,
			CourseCode: q.CourseCode,
			Text:       q.Text,
			Options:    q.Options,
			Image:      q.Image,
		})
	}

	return domain.NewCompetitionSession(
		string(p.CompetitionID),
		p.Name,
		p.TotalTimeMinutes,
		p.SelectedCourses,
		questions,
		Partition(p.SelectedCourses, questions),
	), nil
}

// Partition groups questions into tabs following the course order.
// Courses without questions produce no tab.
func Partition(courses []string, questions []domain.Question) []domain.CourseTab {
	byCourse := make(map[string][]string, len(courses))
	for _, q := range questions {
		byCourse[q.CourseCode] = append(byCourse[q.CourseCode], q.ID)
	}
	tabs := make([]domain.CourseTab, 0, len(courses))
	for _, c := range courses {
		ids := byCourse[c]
		if len(ids) == 0 {
			continue
		}
		tabs = append(tabs, domain.CourseTab{CourseCode: c, QuestionIDs: ids})
	}
	return tabs
}

func describe(err error) string {
	var ve govalidator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
