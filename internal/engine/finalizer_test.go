package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-adaptive/internal/assessment"
)

func TestCompleteScoresAndIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.putAssessment(t, "a1", bank(3, 3, 3, 3), 0)
	ctx := context.Background()

	for i, opt := range []int{1, 1, 0} {
		q := serve(t, h, "a1")
		_, err := h.eng.SubmitAnswer(ctx, "s1", "a1", q, opt)
		require.NoError(t, err, "answer %d", i)
	}
	h.clock.Advance(90 * time.Second)

	res, err := h.eng.Complete(ctx, "s1", "a1")
	require.NoError(t, err)
	assert.InDelta(t, 66.666, res.Score, 0.01)
	assert.True(t, res.Passed)
	assert.Equal(t, 2, res.Correct)
	assert.Equal(t, 3, res.Answered)
	assert.Equal(t, int64(90), res.TimeSpentSec)
	assert.False(t, res.AlreadyCompleted)

	again, err := h.eng.Complete(ctx, "s1", "a1")
	require.NoError(t, err)
	assert.Equal(t, res.Score, again.Score)
	assert.True(t, again.AlreadyCompleted)

	_, rewards, resets := h.oracle.Snapshot()
	assert.Len(t, rewards, 3)
	assert.Equal(t, []string{"s1"}, resets, "reset is sent once")

	att, err := h.store.GetAttempt(ctx, "s1", "a1")
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusCompleted, att.Status)
	require.NotNil(t, att.Score)
	require.NotNil(t, att.EndedAt)
}

func TestCompleteWithoutAnswersScoresZero(t *testing.T) {
	h := newHarness(t)
	h.putAssessment(t, "a1", bank(3), 0)
	serve(t, h, "a1")

	res, err := h.eng.Complete(context.Background(), "s1", "a1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Score)
	assert.False(t, res.Passed)
}

func TestCompleteMissingAttempt(t *testing.T) {
	h := newHarness(t)
	h.putAssessment(t, "a1", bank(3), 0)

	_, err := h.eng.Complete(context.Background(), "s1", "a1")
	assert.ErrorIs(t, err, assessment.ErrNotFound)
}

func TestCompleteSurvivesResetFailure(t *testing.T) {
	h := newHarness(t)
	h.putAssessment(t, "a1", bank(3), 0)
	h.oracle.ResetErr = errors.New("timeout")
	q := serve(t, h, "a1")
	_, err := h.eng.SubmitAnswer(context.Background(), "s1", "a1", q, 1)
	require.NoError(t, err)

	res, err := h.eng.Complete(context.Background(), "s1", "a1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Score)
}

func TestAttemptView(t *testing.T) {
	h := newHarness(t)
	h.putAssessment(t, "a1", bank(3, 3), 0)
	ctx := context.Background()

	v, err := h.eng.Attempt(ctx, "s1", "a1")
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusNotStarted, v.Status)
	assert.Equal(t, ModeAdaptive, v.Mode)
	assert.Nil(t, v.Attempt)

	serve(t, h, "a1")
	v, err = h.eng.Attempt(ctx, "s1", "a1")
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusInProgress, v.Status)
	require.NotNil(t, v.Attempt)
	assert.Nil(t, v.Result)

	_, err = h.eng.Complete(ctx, "s1", "a1")
	require.NoError(t, err)
	v, err = h.eng.Attempt(ctx, "s1", "a1")
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusCompleted, v.Status)
	require.NotNil(t, v.Result)

	_, err = h.eng.Attempt(ctx, "s1", "nope")
	assert.ErrorIs(t, err, assessment.ErrNotFound)
}

func TestStartByCode(t *testing.T) {
	h := newHarness(t)
	a := h.putAssessment(t, "a1", bank(1, 3, 5), 2)
	ctx := context.Background()

	s, err := h.eng.StartByCode(ctx, "s1", a.Code)
	require.NoError(t, err)
	assert.Equal(t, "a1", s.AssessmentID)
	assert.Equal(t, ModeFixed, s.Mode)
	assert.Equal(t, 2, s.QuestionLimit)
	assert.Equal(t, 3, s.TotalQuestions)

	again, err := h.eng.StartByCode(ctx, "s1", a.Code)
	require.NoError(t, err)
	assert.Equal(t, s.AttemptID, again.AttemptID, "start is idempotent")

	_, err = h.eng.StartByCode(ctx, "s1", "bogus")
	assert.ErrorIs(t, err, assessment.ErrNotFound)

	_, err = h.eng.Complete(ctx, "s1", "a1")
	require.NoError(t, err)
	_, err = h.eng.StartByCode(ctx, "s1", a.Code)
	assert.ErrorIs(t, err, assessment.ErrCompleted)
}
