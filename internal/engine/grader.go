package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-adaptive/internal/assessment"
	"github.com/mind-engage/mindengage-adaptive/internal/grading"
	syncx "github.com/mind-engage/mindengage-adaptive/internal/sync"
)

type Grade struct {
	QuestionID     string `json:"question_id"`
	SelectedOption int    `json:"selected_option"`
	Correct        bool   `json:"correct"`
	Answered       int    `json:"answered"`
}

// SubmitAnswer grades and records one answer. selected may be any decoded
// JSON scalar naming an option index. The oracle is told about the outcome
// after the answer is stored; a failed notification is logged only.
func (e *Engine) SubmitAnswer(ctx context.Context, studentID, assessmentID, questionID string, selected any) (Grade, error) {
	att, err := e.store.GetAttempt(ctx, studentID, assessmentID)
	if err != nil {
		return Grade{}, err
	}
	if att.Completed() {
		return Grade{}, assessment.ErrCompleted
	}
	if att.HasAnswered(questionID) {
		return Grade{}, assessment.ErrAlreadyAnswered
	}
	a, err := e.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return Grade{}, err
	}
	q, ok := a.Question(questionID)
	if !ok {
		return Grade{}, fmt.Errorf("question %q: %w", questionID, assessment.ErrNotFound)
	}
	if !att.Served(questionID) {
		return Grade{}, assessment.ErrNotServed
	}

	opt, correct, err := grading.Choice{}.Grade(grading.Key{Correct: q.CorrectOption}, selected)
	if err != nil {
		return Grade{}, fmt.Errorf("%w: %v", assessment.ErrBadAnswer, err)
	}

	updated, err := e.store.AppendAnswer(ctx, att.ID, assessment.Answer{
		QuestionID:     q.ID,
		SelectedOption: opt,
		Correct:        correct,
		Difficulty:     q.Difficulty,
		AnsweredAt:     e.clock(),
	})
	if err != nil {
		return Grade{}, err
	}
	e.metrics.AnswerGraded(correct)
	e.emit(ctx, syncx.TypeAnswerRecorded, att.ID, map[string]any{
		"question_id": q.ID,
		"correct":     correct,
		"difficulty":  q.Difficulty,
	})

	if err := e.oracle.SubmitReward(ctx, studentID, q.Difficulty, correct); err != nil {
		e.metrics.OracleDegraded("answer")
		e.log.Warn("oracle reward not delivered",
			zap.String("student_id", studentID),
			zap.String("assessment_id", assessmentID),
			zap.String("question_id", q.ID),
			zap.Error(err))
	}

	return Grade{
		QuestionID:     q.ID,
		SelectedOption: opt,
		Correct:        correct,
		Answered:       len(updated.Answers),
	}, nil
}
