package jobs

import "errors"

var (
	// ErrNotFound is returned when a job does not exist in the store.
	ErrNotFound = errors.New("job not found")
	// ErrAlreadyExists is returned when creating a job whose id is taken.
	ErrAlreadyExists = errors.New("job already exists")
	// ErrUnknownJobType is returned for types without a registered handler.
	ErrUnknownJobType = errors.New("unknown job type")
	// ErrInvalidOptions is returned when options do not match the job type.
	ErrInvalidOptions = errors.New("invalid job options")
	// ErrNoTargets is returned when a job is created without targets.
	ErrNoTargets = errors.New("at least one target required")
	// ErrInvalidTransition is returned for status changes the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidTarget marks a task whose target failed validation.
	ErrInvalidTarget = errors.New("invalid target")
)
