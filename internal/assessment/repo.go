package assessment

import (
	"context"
	"time"
)

type ListOpts struct {
	Q         string
	CreatedBy string
	Limit     int
	Offset    int
}

type AttemptListOpts struct {
	AssessmentID string
	StudentID    string
	Status       Status
	Limit        int
	Offset       int
	Sort         string // started_at desc (default) | score desc | ended_at desc
}

// GradeFunc computes the final score and pass flag of an attempt.
type GradeFunc func(a Attempt) (score float64, passed bool)

// Store is the single source of truth for banks and attempts.
//
// Append operations re-check the attempt status and per-attempt question
// uniqueness under the same lock or transaction that performs the write.
type Store interface {
	PutAssessment(ctx context.Context, a Assessment) error
	GetAssessment(ctx context.Context, id string) (Assessment, error)
	GetAssessmentByCode(ctx context.Context, code string) (Assessment, error)
	ListAssessments(ctx context.Context, opts ListOpts) ([]AssessmentSummary, error)

	PutStudent(ctx context.Context, s Student) error
	GetStudent(ctx context.Context, id string) (Student, error)

	// EnsureAttempt creates the attempt for the pair if missing; a second
	// call returns the existing attempt.
	EnsureAttempt(ctx context.Context, studentID, assessmentID string, now time.Time) (Attempt, bool, error)
	GetAttempt(ctx context.Context, studentID, assessmentID string) (Attempt, error)
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)

	// AppendAsked fails with ErrQuestionLimit once limit entries exist.
	AppendAsked(ctx context.Context, attemptID string, q AskedQuestion, limit int) (Attempt, error)
	AppendAnswer(ctx context.Context, attemptID string, ans Answer) (Attempt, error)

	// SaveForm stores the fixed form once; later calls return the stored form.
	SaveForm(ctx context.Context, attemptID string, questionIDs []string) (Attempt, error)

	// Complete seals the attempt with the score computed by grade from the
	// attempt as stored at sealing time. sealed is false when it was already
	// completed, in which case the stored attempt is returned unchanged.
	Complete(ctx context.Context, attemptID string, endedAt time.Time, grade GradeFunc) (a Attempt, sealed bool, err error)
}
