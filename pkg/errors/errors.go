// Package errors provides error wrapping utilities and the classified error
// kinds surfaced by the provisioning pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Wrap wraps an error with additional context information.
// If err is nil, it returns nil without wrapping.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Kind classifies a failure so callers can branch on it without string matching.
type Kind string

const (
	KindConfigValidation  Kind = "CONFIG_INVALID"
	KindVersionResolution Kind = "VERSION_RESOLUTION"
	KindDeviceDiscovery   Kind = "DEVICE_DISCOVERY"
	KindDeviceInfo        Kind = "DEVICE_INFO"
	KindLogin             Kind = "LOGIN"
	KindNoMatchingBuild   Kind = "NO_MATCHING_BUILD"
	KindChecksumMismatch  Kind = "CHECKSUM_MISMATCH"
	KindRegistration      Kind = "REGISTRATION"
	KindFlashFailed       Kind = "FLASH_FAILED"
)

// Error is a classified error. The message is what the user sees; Err keeps
// the underlying cause reachable through errors.Is/As.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so a bare New(kind, "") works as a
// sentinel for errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if stderrors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithKind classifies err, keeping it as the cause. If err is nil, it returns nil.
func WithKind(err error, kind Kind, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain, or ""
// if there is none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err's chain holds an error of the given kind.
func IsKind(err error, kind Kind) bool {
	return stderrors.Is(err, New(kind, ""))
}

type reported struct{ error }

func (r reported) Unwrap() error { return r.error }

// MarkReported marks err as already shown to the user. If err is nil, it
// returns nil.
func MarkReported(err error) error {
	if err == nil {
		return nil
	}
	return reported{err}
}

// IsReported reports whether err was marked with MarkReported.
func IsReported(err error) bool {
	var r reported
	return stderrors.As(err, &r)
}

// Is and As forward to the standard library so callers importing this
// package under the name errors keep the usual helpers.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }
