package domain

import "errors"

// -----------------------------------------------------------------------------
// Domain Errors
// Configuration errors are fatal; not-found conditions are expected
// steady-state and are surfaced as nil/empty results, not errors.
// -----------------------------------------------------------------------------

// Bandit errors
var (
	ErrNoArms = errors.New("bandit has no arms")
)

// Ladder errors
var (
	ErrLadderStateNotFound = errors.New("ladder state not found")
)

// Store errors
var (
	ErrProfileNotFound  = errors.New("learner profile not found")
	ErrTextbookNotFound = errors.New("textbook not found")
)

// General errors
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)
