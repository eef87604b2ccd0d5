package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSession is returned when the transient input is missing, malformed or of the wrong kind.
	ErrInvalidSession = errors.New("invalid competition session")
	// ErrStorageCorruption indicates a stored snapshot could not be decoded.
	ErrStorageCorruption = errors.New("progress snapshot corrupted")
	// ErrSubmissionInProgress rejects a submit while another one is outstanding.
	ErrSubmissionInProgress = errors.New("submission already in progress")
	// ErrAlreadySubmitted rejects any action after a successful submission.
	ErrAlreadySubmitted = errors.New("competition already submitted")
	// ErrSessionClosed is returned once an engine has been abandoned or shut down.
	ErrSessionClosed = errors.New("competition session closed")
	// ErrTimeExpired rejects answers and navigation after the countdown reached zero.
	ErrTimeExpired = errors.New("competition time expired")
	// ErrUnknownQuestion indicates a question id outside the session.
	ErrUnknownQuestion = errors.New("question not in session")
	// ErrInvalidOption indicates an ordinal outside the question's options.
	ErrInvalidOption = errors.New("option ordinal out of range")
	// ErrNoExitPending is returned when an exit is confirmed without a prompt being shown.
	ErrNoExitPending = errors.New("no exit confirmation pending")
	// ErrCompetitionNotFound is returned when no engine or payload exists for an id.
	ErrCompetitionNotFound = errors.New("competition not found")
)

// SubmissionError wraps a failed call to the scoring service. The attempt can be retried.
type SubmissionError struct {
	Reason SubmitReason
	Err    error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit competition (%s): %v", e.Reason, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Retryable is always true: local state is preserved on failure.
func (e *SubmissionError) Retryable() bool { return true }
