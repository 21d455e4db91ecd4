package engine

import (
	"context"

	"github.com/mind-engage/mindengage-adaptive/internal/assessment"
)

const (
	ModeAdaptive = "adaptive"
	ModeFixed    = "fixed"
)

// Session describes an opened attempt to the student.
type Session struct {
	AttemptID      string            `json:"attempt_id"`
	AssessmentID   string            `json:"assessment_id"`
	Code           string            `json:"code"`
	Title          string            `json:"title"`
	Description    string            `json:"description,omitempty"`
	Level          string            `json:"level,omitempty"`
	DurationSec    int               `json:"duration_sec"`
	PassScore      float64           `json:"pass_score"`
	Mode           string            `json:"mode"`
	TotalQuestions int               `json:"total_questions"`
	QuestionLimit  int               `json:"question_limit"`
	Status         assessment.Status `json:"status"`
	Answered       int               `json:"answered"`
}

func (e *Engine) mode(a assessment.Assessment) (string, int) {
	if a.FixedForm() {
		return ModeFixed, a.QuestionsToAttempt
	}
	return ModeAdaptive, a.SessionLimit(e.floor)
}

// StartByCode opens (or resumes) the student's attempt on the assessment
// with the given code. A completed attempt cannot be restarted.
func (e *Engine) StartByCode(ctx context.Context, studentID, code string) (Session, error) {
	a, err := e.store.GetAssessmentByCode(ctx, code)
	if err != nil {
		return Session{}, err
	}
	if err := e.requireStudent(ctx, studentID); err != nil {
		return Session{}, err
	}
	att, err := e.ensureAttempt(ctx, studentID, a.ID)
	if err != nil {
		return Session{}, err
	}
	if att.Completed() {
		return Session{}, assessment.ErrCompleted
	}
	mode, limit := e.mode(a)
	return Session{
		AttemptID:      att.ID,
		AssessmentID:   a.ID,
		Code:           a.Code,
		Title:          a.Title,
		Description:    a.Description,
		Level:          a.Level,
		DurationSec:    a.DurationSec,
		PassScore:      a.PassScore,
		Mode:           mode,
		TotalQuestions: len(a.Questions),
		QuestionLimit:  limit,
		Status:         att.Status,
		Answered:       len(att.Answers),
	}, nil
}

type AttemptView struct {
	Status  assessment.Status   `json:"status"`
	Mode    string              `json:"mode"`
	Limit   int                 `json:"question_limit"`
	Attempt *assessment.Attempt `json:"attempt,omitempty"`
	Result  *Result             `json:"result,omitempty"`
}

// Attempt reports the student's progress on an assessment. A missing
// attempt is reported as not started.
func (e *Engine) Attempt(ctx context.Context, studentID, assessmentID string) (AttemptView, error) {
	a, err := e.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return AttemptView{}, err
	}
	mode, limit := e.mode(a)
	att, err := e.store.GetAttempt(ctx, studentID, assessmentID)
	if isNotFound(err) {
		return AttemptView{Status: assessment.StatusNotStarted, Mode: mode, Limit: limit}, nil
	}
	if err != nil {
		return AttemptView{}, err
	}
	v := AttemptView{Status: att.Status, Mode: mode, Limit: limit, Attempt: &att}
	if att.Completed() {
		r := resultOf(att, true)
		v.Result = &r
	}
	return v, nil
}
