package models

import "errors"

var (
	// ErrInputMalformed marks a frame field that is missing or out of range.
	// The offending sub-signal is treated as absent for the cycle.
	ErrInputMalformed = errors.New("input malformed")

	// ErrCollaboratorUnavailable marks a failed or timed out store/sink call.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrConfigurationInvalid marks a rejected configuration.
	ErrConfigurationInvalid = errors.New("configuration invalid")
)
