package flow

import "errors"

var (
	// ErrValidation is returned for synchronously rejected input: edited
	// artifact kinds outside the phase's declared set, empty rejection
	// feedback, or unknown sessions and phases.
	ErrValidation = errors.New("flow: validation failed")

	// ErrGeneration wraps a collaborator failure for one artifact. It is
	// recorded per-artifact and propagates the gate to failed; retry is
	// an explicit user action, never automatic.
	ErrGeneration = errors.New("flow: artifact generation failed")

	// ErrSessionNotFound is returned when the named session does not exist.
	ErrSessionNotFound = errors.New("flow: session not found")
)
