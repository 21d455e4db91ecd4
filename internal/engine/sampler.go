package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/mind-engage/mindengage-adaptive/internal/assessment"
)

// Tier shares of a fixed form; medium takes the rounding remainder.
const (
	easyShare = 0.3
	hardShare = 0.3
)

// SelectForm samples targetCount questions from bank, aiming for 30% easy,
// 30% hard and the rest medium. Short tiers are topped up from whatever is
// left in the bank, and the result is shuffled.
func SelectForm(bank []assessment.Question, targetCount int, r *rand.Rand) []assessment.Question {
	if targetCount <= 0 || len(bank) == 0 {
		return nil
	}
	if targetCount >= len(bank) {
		out := append([]assessment.Question(nil), bank...)
		shuffle(out, r)
		return out
	}

	var easy, medium, hard []assessment.Question
	for _, q := range bank {
		switch assessment.TierOf(q.Difficulty) {
		case assessment.TierEasy:
			easy = append(easy, q)
		case assessment.TierMedium:
			medium = append(medium, q)
		default:
			hard = append(hard, q)
		}
	}
	wantEasy := int(math.Round(easyShare * float64(targetCount)))
	wantHard := int(math.Round(hardShare * float64(targetCount)))
	wantMedium := targetCount - wantEasy - wantHard

	out := make([]assessment.Question, 0, targetCount)
	out = append(out, sample(easy, wantEasy, r)...)
	out = append(out, sample(hard, wantHard, r)...)
	out = append(out, sample(medium, wantMedium, r)...)

	if short := targetCount - len(out); short > 0 {
		picked := make(map[string]struct{}, len(out))
		for _, q := range out {
			picked[q.ID] = struct{}{}
		}
		var rest []assessment.Question
		for _, q := range bank {
			if _, ok := picked[q.ID]; !ok {
				rest = append(rest, q)
			}
		}
		out = append(out, sample(rest, short, r)...)
	}
	shuffle(out, r)
	return out
}

// sample draws k items without replacement; a short pool yields all of it.
func sample(pool []assessment.Question, k int, r *rand.Rand) []assessment.Question {
	if k <= 0 || len(pool) == 0 {
		return nil
	}
	cp := append([]assessment.Question(nil), pool...)
	shuffle(cp, r)
	if k < len(cp) {
		cp = cp[:k]
	}
	return cp
}

func shuffle(qs []assessment.Question, r *rand.Rand) {
	r.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
}

type Form struct {
	AttemptID string                      `json:"attempt_id"`
	Questions []assessment.PublicQuestion `json:"questions"`
	Cached    bool                        `json:"cached"`
}

// SelectForm returns the attempt's fixed form, sampling and storing it on
// first call. targetCount <= 0 uses the assessment's question count.
func (e *Engine) SelectForm(ctx context.Context, assessmentID, studentID string, targetCount int) (Form, error) {
	a, err := e.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return Form{}, err
	}
	if err := e.requireStudent(ctx, studentID); err != nil {
		return Form{}, err
	}
	att, err := e.ensureAttempt(ctx, studentID, assessmentID)
	if err != nil {
		return Form{}, err
	}
	if len(att.Form) > 0 {
		return formOf(a, att, true)
	}
	if att.Completed() {
		return Form{}, assessment.ErrCompleted
	}

	n := targetCount
	if n <= 0 {
		n = a.QuestionsToAttempt
	}
	if n <= 0 {
		n = len(a.Questions)
	}
	var picked []assessment.Question
	e.withRand(func(r *rand.Rand) { picked = SelectForm(a.Questions, n, r) })
	ids := make([]string, len(picked))
	for i, q := range picked {
		ids[i] = q.ID
	}

	stored, err := e.store.SaveForm(ctx, att.ID, ids)
	if err != nil {
		return Form{}, err
	}
	return formOf(a, stored, !sameIDs(stored.Form, ids))
}

func formOf(a assessment.Assessment, att assessment.Attempt, cached bool) (Form, error) {
	out := Form{AttemptID: att.ID, Cached: cached, Questions: make([]assessment.PublicQuestion, 0, len(att.Form))}
	for _, id := range att.Form {
		q, ok := a.Question(id)
		if !ok {
			return Form{}, fmt.Errorf("form question %q missing from bank: %w", id, assessment.ErrNotFound)
		}
		out.Questions = append(out.Questions, q.Public())
	}
	return out, nil
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
