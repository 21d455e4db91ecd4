package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-adaptive/internal/assessment"
	syncx "github.com/mind-engage/mindengage-adaptive/internal/sync"
)

type Result struct {
	AttemptID        string        `json:"attempt_id"`
	Score            float64       `json:"score"`
	Passed           bool          `json:"passed"`
	Correct          int           `json:"correct"`
	Answered         int           `json:"answered"`
	TimeSpent        time.Duration `json:"-"`
	TimeSpentSec     int64         `json:"time_spent_seconds"`
	AlreadyCompleted bool          `json:"already_completed"`
}

func resultOf(att assessment.Attempt, already bool) Result {
	r := Result{
		AttemptID:        att.ID,
		Passed:           att.Passed,
		Correct:          att.CorrectCount(),
		Answered:         len(att.Answers),
		TimeSpent:        att.TimeSpent(),
		AlreadyCompleted: already,
	}
	if att.Score != nil {
		r.Score = *att.Score
	}
	r.TimeSpentSec = int64(r.TimeSpent / time.Second)
	return r
}

// Complete seals the attempt and returns its score. Calling it again
// returns the stored result without touching the oracle.
func (e *Engine) Complete(ctx context.Context, studentID, assessmentID string) (Result, error) {
	att, err := e.store.GetAttempt(ctx, studentID, assessmentID)
	if err != nil {
		return Result{}, err
	}
	if att.Completed() {
		return resultOf(att, true), nil
	}
	a, err := e.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return Result{}, err
	}

	sealed, ok, err := e.store.Complete(ctx, att.ID, e.clock(), func(cur assessment.Attempt) (float64, bool) {
		score := assessment.ScorePercent(cur.Answers)
		return score, score >= a.PassScore
	})
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return resultOf(sealed, true), nil
	}

	res := resultOf(sealed, false)
	e.metrics.Completed()
	e.log.Info("attempt completed",
		zap.String("attempt_id", sealed.ID),
		zap.String("student_id", studentID),
		zap.String("assessment_id", assessmentID),
		zap.Float64("score", res.Score),
		zap.Bool("passed", res.Passed))
	e.emit(ctx, syncx.TypeAttemptCompleted, sealed.ID, map[string]any{
		"score":              res.Score,
		"passed":             res.Passed,
		"answered":           res.Answered,
		"time_spent_seconds": res.TimeSpentSec,
	})

	if err := e.oracle.Reset(ctx, studentID); err != nil {
		e.metrics.OracleDegraded("reset")
		e.log.Warn("oracle reset failed",
			zap.String("student_id", studentID),
			zap.String("assessment_id", assessmentID),
			zap.Error(err))
	}
	return res, nil
}
