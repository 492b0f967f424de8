package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a turn failed.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindUpstreamLookupFailure: places source unreachable or non-2xx.
	KindUpstreamLookupFailure
	// KindModelInvocationFailure: model call error or malformed structured output.
	KindModelInvocationFailure
	// KindMissingSnapshot: refinement without a prior fresh search.
	KindMissingSnapshot
	// KindValidationFailure: malformed incoming request.
	KindValidationFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindUpstreamLookupFailure:
		return "upstream_lookup_failure"
	case KindModelInvocationFailure:
		return "model_invocation_failure"
	case KindMissingSnapshot:
		return "missing_snapshot"
	case KindValidationFailure:
		return "validation_failure"
	default:
		return "unknown"
	}
}

// ErrSnapshotNotFound is returned by snapshot stores when a session has no
// snapshot.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// TurnError is a failure that aborts a turn.
type TurnError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func NewTurnError(kind ErrorKind, message string, err error) *TurnError {
	return &TurnError{Kind: kind, Message: message, Err: err}
}

func (e *TurnError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first TurnError in err's chain.
func KindOf(err error) ErrorKind {
	var turnErr *TurnError
	if errors.As(err, &turnErr) {
		return turnErr.Kind
	}
	return KindUnknown
}
