// Package oracle talks to the external difficulty-selection service that
// recommends the next question difficulty for a student and learns from
// correctness rewards.
package oracle

import (
	"context"
	"errors"
)

// ErrUnavailable wraps transport and protocol failures talking to the oracle.
var ErrUnavailable = errors.New("oracle unavailable")

type Client interface {
	// NextDifficulty returns the recommended difficulty for the student's next question.
	NextDifficulty(ctx context.Context, studentID string) (int, error)
	// SubmitReward reports whether the student answered a question of the given difficulty correctly.
	SubmitReward(ctx context.Context, studentID string, difficulty int, correct bool) error
	// Reset drops the oracle's per-student state.
	Reset(ctx context.Context, studentID string) error
}
