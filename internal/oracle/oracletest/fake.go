// Package oracletest provides an in-memory oracle for tests.
package oracletest

import (
	"context"
	"sync"

	"github.com/mind-engage/mindengage-adaptive/internal/oracle"
)

type Reward struct {
	StudentID  string
	Difficulty int
	Correct    bool
}

// Fake replays scripted difficulties and records every call. When the
// script runs out it keeps returning Default.
type Fake struct {
	mu sync.Mutex

	Script  []int
	Default int

	NextErr   error
	RewardErr error
	ResetErr  error

	NextCalls int
	Rewards   []Reward
	Resets    []string
}

var _ oracle.Client = (*Fake)(nil)

func New(script ...int) *Fake {
	return &Fake{Script: script, Default: 3}
}

func (f *Fake) NextDifficulty(_ context.Context, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.NextCalls++
	if f.NextErr != nil {
		return 0, f.NextErr
	}
	if len(f.Script) > 0 {
		d := f.Script[0]
		f.Script = f.Script[1:]
		return d, nil
	}
	return f.Default, nil
}

func (f *Fake) SubmitReward(_ context.Context, studentID string, difficulty int, correct bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Rewards = append(f.Rewards, Reward{StudentID: studentID, Difficulty: difficulty, Correct: correct})
	return f.RewardErr
}

func (f *Fake) Reset(_ context.Context, studentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Resets = append(f.Resets, studentID)
	return f.ResetErr
}

// Snapshot returns copies of the recorded calls.
func (f *Fake) Snapshot() (nextCalls int, rewards []Reward, resets []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.NextCalls, append([]Reward(nil), f.Rewards...), append([]string(nil), f.Resets...)
}
