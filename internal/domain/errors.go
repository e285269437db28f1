package domain

import "errors"

var (
	// ErrNotFound indicates that a requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that a resource with the same identity
	// already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidArgument indicates that a caller-provided value violates
	// a precondition. Malformed plan parameters (checkpoint sequences,
	// percentage bounds) are rejected with this error before any fleet
	// mutation.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrBuildFailed indicates that the build stage failed. The pipeline
	// halts before the deploy stage; the fleet is never touched.
	ErrBuildFailed = errors.New("build failed")

	// ErrPlanConflict indicates that a replacement plan is already
	// running for the fleet. Concurrent starts are rejected, not queued.
	ErrPlanConflict = errors.New("replacement plan already running")

	// ErrHealthTimeout indicates that a launched instance never became
	// healthy within the relaunch budget.
	ErrHealthTimeout = errors.New("health confirmation timed out")

	// ErrCancelled indicates that plan cancellation was requested and
	// observed at a batch boundary.
	ErrCancelled = errors.New("cancellation requested")
)
