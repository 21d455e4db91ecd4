package assessment

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrCompleted is returned for any mutation of a sealed attempt.
	ErrCompleted = errors.New("assessment completed")

	ErrAlreadyAnswered = errors.New("question already answered")
	ErrAlreadyAsked    = errors.New("question already asked")
	ErrQuestionLimit   = errors.New("question limit reached")
	ErrNotServed       = errors.New("question was not served in this attempt")

	// ErrBadAnswer is returned for a response that is not an option index.
	ErrBadAnswer = errors.New("answer is not an option index")

	ErrCodeTaken = errors.New("assessment code already exists")
	ErrInvalid   = errors.New("invalid assessment")
)
