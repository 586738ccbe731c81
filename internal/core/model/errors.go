package model

import (
	"fmt"
)

type ErrorKind string

const (
	ErrorKindExtraction   ErrorKind = "extraction"
	ErrorKindCollaborator ErrorKind = "collaborator"
	ErrorKindValidation   ErrorKind = "validation"
	ErrorKindCancelled    ErrorKind = "cancelled"
	ErrorKindInternal     ErrorKind = "internal"
)

// ErrorRecord is the terminal error attached to a failed run.
type ErrorRecord struct {
	Stage   string    `json:"stage"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// ValidationError reports a MeetingAction that violates its field requirements.
type ValidationError struct {
	Index  int
	Action ActionType
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s action #%d: %s %s", e.Action, e.Index, e.Field, e.Reason)
}

// CollaboratorError wraps a failed call to the LLM, calendar or mail service.
type CollaboratorError struct {
	Service string
	Op      string
	Err     error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Service, e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// StageError ties a classified failure to the stage that produced it.
type StageError struct {
	Stage string
	Kind  ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Record converts the error into its wire form.
func (e *StageError) Record() *ErrorRecord {
	return &ErrorRecord{Stage: e.Stage, Kind: e.Kind, Message: e.Err.Error()}
}
