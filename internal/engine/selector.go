package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-adaptive/internal/assessment"
	syncx "github.com/mind-engage/mindengage-adaptive/internal/sync"
)

// Done reasons reported by NextQuestion.
const (
	ReasonCompleted  = "already completed"
	ReasonLimit      = "question limit reached"
	ReasonExhausted  = "no more questions"
	maxFallbackShift = assessment.MaxDifficulty - assessment.MinDifficulty
	maxPickAttempts  = 3
)

type NextResult struct {
	Question *assessment.PublicQuestion `json:"question,omitempty"`
	Done     bool                       `json:"done"`
	Reason   string                     `json:"reason,omitempty"`

	// Position is the 1-based index of the served question.
	Position int `json:"position,omitempty"`
	Limit    int `json:"limit"`
}

func done(reason string, limit int) NextResult {
	return NextResult{Done: true, Reason: reason, Limit: limit}
}

// NextQuestion serves the next question of the student's attempt, opening
// the attempt on first use. The served difficulty is the closest available
// to the oracle's target.
func (e *Engine) NextQuestion(ctx context.Context, studentID, assessmentID string) (NextResult, error) {
	a, err := e.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return NextResult{}, err
	}
	if err := e.requireStudent(ctx, studentID); err != nil {
		return NextResult{}, err
	}
	att, err := e.ensureAttempt(ctx, studentID, assessmentID)
	if err != nil {
		return NextResult{}, err
	}
	limit := a.SessionLimit(e.floor)

	var target int
	haveTarget := false
	for i := 0; i < maxPickAttempts; i++ {
		if att.Completed() {
			return done(ReasonCompleted, limit), nil
		}
		if len(att.Asked) >= limit {
			return done(ReasonLimit, limit), nil
		}
		if !haveTarget {
			target, err = e.targetDifficulty(ctx, studentID)
			if err != nil {
				return NextResult{}, err
			}
			haveTarget = true
		}

		candidates, offset := Candidates(a.Questions, att, target)
		if len(candidates) == 0 {
			return done(ReasonExhausted, limit), nil
		}
		q := candidates[e.intN(len(candidates))]

		updated, err := e.store.AppendAsked(ctx, att.ID, assessment.AskedQuestion{
			QuestionID: q.ID,
			Difficulty: q.Difficulty,
			AskedAt:    e.clock(),
		}, limit)
		switch {
		case err == nil:
			e.metrics.QuestionServed(offset)
			e.emit(ctx, syncx.TypeQuestionAsked, att.ID, map[string]any{
				"question_id": q.ID,
				"difficulty":  q.Difficulty,
				"target":      target,
			})
			pub := q.Public()
			return NextResult{Question: &pub, Position: len(updated.Asked), Limit: limit}, nil
		case errors.Is(err, assessment.ErrCompleted):
			return done(ReasonCompleted, limit), nil
		case errors.Is(err, assessment.ErrQuestionLimit):
			return done(ReasonLimit, limit), nil
		case errors.Is(err, assessment.ErrAlreadyAsked):
			// a concurrent poll took the question; re-read and pick again
			if att, err = e.store.GetAttempt(ctx, studentID, assessmentID); err != nil {
				return NextResult{}, err
			}
		default:
			return NextResult{}, err
		}
	}
	return NextResult{}, fmt.Errorf("next question for %s: %w", att.ID, assessment.ErrAlreadyAsked)
}

func (e *Engine) targetDifficulty(ctx context.Context, studentID string) (int, error) {
	d, err := e.oracle.NextDifficulty(ctx, studentID)
	if err != nil {
		e.log.Warn("oracle next difficulty failed", zap.String("student_id", studentID), zap.Error(err))
		return 0, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if c := assessment.ClampDifficulty(d); c != d {
		e.log.Warn("oracle difficulty out of range",
			zap.String("student_id", studentID), zap.Int("difficulty", d), zap.Int("clamped", c))
		d = c
	}
	return d, nil
}

// Candidates returns the unserved questions closest to target, together
// with their distance from it. Both directions are combined per distance,
// so a target of 3 with no 3s left yields every remaining 2 and 4.
func Candidates(bank []assessment.Question, att assessment.Attempt, target int) ([]assessment.Question, int) {
	for offset := 0; offset <= maxFallbackShift; offset++ {
		var out []assessment.Question
		for _, q := range bank {
			if abs(q.Difficulty-target) != offset {
				continue
			}
			if att.HasAnswered(q.ID) || att.HasAsked(q.ID) {
				continue
			}
			out = append(out, q)
		}
		if len(out) > 0 {
			return out, offset
		}
	}
	return nil, 0
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
