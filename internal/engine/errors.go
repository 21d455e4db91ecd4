package engine

import "errors"

// ErrUpstreamUnavailable is returned when the oracle cannot recommend a
// difficulty. The caller may retry; no difficulty is guessed.
var ErrUpstreamUnavailable = errors.New("difficulty oracle unavailable")
