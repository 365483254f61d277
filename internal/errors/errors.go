// Package errors defines the error taxonomy shared by the autoscaler and its
// backends.
//
// Every failure a backend reports is wrapped in an *Error carrying a Kind.
// The control loop uses the kind to decide whether a tick failure is fatal
// or whether it can log the failure and wait for the next tick:
//
//	if errors.IsFatal(err) {
//	    return err
//	}
//
// Kinds also satisfy errors.Is through their sentinel values, so callers can
// write errors.Is(err, errors.ErrNotFound).
package errors

import (
	"errors"
	"fmt"
)

// Re-exported so callers only need this package for error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
)

// Kind classifies an error by how the control loop should react to it.
type Kind int

const (
	// KindUnknown is used for errors not produced by this package.
	KindUnknown Kind = iota
	// KindConfig is an invalid or ambiguous configuration. Always fatal.
	KindConfig
	// KindBackendUnavailable is a transient failure talking to a collaborator.
	KindBackendUnavailable
	// KindNotFound means the queue or the workload does not exist.
	KindNotFound
	// KindAPI is a write rejected by the cluster (conflict, permissions, validation).
	KindAPI
)

// String returns the name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "ConfigError"
	case KindBackendUnavailable:
		return "BackendUnavailable"
	case KindNotFound:
		return "NotFound"
	case KindAPI:
		return "ApiError"
	default:
		return "Unknown"
	}
}

// Sentinels for errors.Is checks against a kind.
var (
	ErrConfig             = &Error{Kind: KindConfig}
	ErrBackendUnavailable = &Error{Kind: KindBackendUnavailable}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrAPI                = &Error{Kind: KindAPI}
)

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match when target is an *Error of the same kind with no
// message, which is how the sentinel values are defined.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// NewError creates a classified error.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Config creates a KindConfig error.
func Config(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConfig, Message: fmt.Sprintf(format, args...)}
}

// Unavailable wraps a transient collaborator failure.
func Unavailable(message string, err error) *Error {
	return &Error{Kind: KindBackendUnavailable, Message: message, Err: err}
}

// NotFound wraps a missing queue or workload.
func NotFound(message string, err error) *Error {
	return &Error{Kind: KindNotFound, Message: message, Err: err}
}

// API wraps a rejected cluster write.
func API(message string, err error) *Error {
	return &Error{Kind: KindAPI, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsFatal reports whether err should stop the control loop. Configuration
// errors, missing resources and unclassified errors are fatal; transient
// backend failures and rejected writes are not.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindBackendUnavailable, KindAPI:
		return false
	default:
		return true
	}
}
