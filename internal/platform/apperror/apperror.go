// Package apperror defines the error taxonomy shared across Agent Forge's
// kernel components, per the propagation policy: every error is surfaced
// as a structured log entry and, for user-initiated actions, returned to
// the caller. No error is ever silently swallowed.
package apperror

import "errors"

// Kind tags an error with the category from the design's error taxonomy.
type Kind string

const (
	KindConfig Kind = "config" // malformed or missing configuration
	KindProvision Kind = "provision" // workspace/branch setup failed
	KindSession Kind = "session" // multiplexer refused or lost a session
	KindPlatform Kind = "platform" // connector send failed
	KindInference Kind = "inference" // pane capture failed
	KindStore Kind = "store" // persistence write failed
)

// Error is a taxonomy-tagged error that still satisfies the standard
// errors.Is/errors.As unwrap chain.
type Error struct {
	Kind Kind
	Op string
	Err error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return string(e.Kind) + ": " + e.Op + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a Kind and an operation label.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Sentinel outcomes named directly by the operation tables.
var (
	ErrNotFound = errors.New("not found")
	ErrCapExceeded = errors.New("cap exceeded")
	ErrTerminated = errors.New("agent terminated")
	ErrAlreadyExists = errors.New("already exists")
	ErrProvisionFail = errors.New("provisioner failed")
	ErrSessionFail = errors.New("session start failed")
	ErrInvalidProfile = errors.New("invalid profile")
	ErrNoBinding = errors.New("no channel binding")
)
