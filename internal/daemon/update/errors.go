package update

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies update failures.
type ErrorKind string

// Error kinds.
const (
	KindFeedUnreachable ErrorKind = "FeedUnreachable"
	KindTimeout         ErrorKind = "Timeout"
	KindMalformedFeed   ErrorKind = "MalformedFeed"
	KindDownloadFailed  ErrorKind = "DownloadFailed"
	KindInstallFailed   ErrorKind = "InstallFailed"
)

// Error is an update failure of a known kind.
type Error struct {
	Kind ErrorKind
	Err  error
}

// NewError wraps err with kind.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so errors.Is(err, &Error{Kind: KindTimeout})
// works without comparing causes.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Err == nil || errors.Is(e.Err, t.Err))
}

// KindOf returns the kind of err, or "" if err is not an *Error.
func KindOf(err error) ErrorKind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return ""
}

// classify returns err as an *Error, using fallback when it carries no kind.
// Deadline errors always classify as KindTimeout.
func classify(err error, fallback ErrorKind) *Error {
	var ue *Error
	if errors.As(err, &ue) {
		if ue.Kind != KindTimeout && errors.Is(ue.Err, context.DeadlineExceeded) {
			return NewError(KindTimeout, ue.Err)
		}
		return ue
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTimeout, err)
	}
	return NewError(fallback, err)
}
