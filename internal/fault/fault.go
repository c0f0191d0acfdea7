// Package fault defines the typed error taxonomy shared by every stage of the
// generation pipeline. Callers branch on Kind, never on message text.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by what the caller should do about it.
type Kind string

// Error kinds.
const (
	KindRequest   Kind = "request"    // malformed or policy-violating input; fix the input
	KindAuth      Kind = "auth"       // invalid or expired credential; re-authenticate
	KindQuota     Kind = "quota"      // insufficient provider credits; user action required
	KindRateLimit Kind = "rate_limit" // provider throttling; retry later
	KindProvider  Kind = "provider"   // provider-side failure during generation
	KindTimeout   Kind = "timeout"    // HTTP call or poll budget exceeded; try again
	KindProtocol  Kind = "protocol"   // success reported without a usable result
	KindUpload    Kind = "upload"     // source media could not be read or uploaded
)

// Sentinels for errors.Is matching against a kind.
var (
	ErrRequest   = &Error{Kind: KindRequest}
	ErrAuth      = &Error{Kind: KindAuth}
	ErrQuota     = &Error{Kind: KindQuota}
	ErrRateLimit = &Error{Kind: KindRateLimit}
	ErrProvider  = &Error{Kind: KindProvider}
	ErrTimeout   = &Error{Kind: KindTimeout}
	ErrProtocol  = &Error{Kind: KindProtocol}
	ErrUpload    = &Error{Kind: KindUpload}
)

// Error is a classified failure.
type Error struct {
	// Kind is the failure category.
	Kind Kind
	// Op names the operation that failed, e.g. "kie.submit".
	Op string
	// Message is a human-readable reason, surfaced verbatim to users where possible.
	Message string
	// Err is the underlying cause, if any.
	Err error
}

// New creates a classified error without an underlying cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies err under kind. It returns nil when err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: err.Error(), Err: err}
}

// Errorf creates a classified error with a formatted message.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind) + " error"
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind. A target with an
// empty Op and Message acts as a kind sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the failure is transient from the polling layer's
// point of view: throttling, provider-side errors and timeouts.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimit, KindProvider, KindTimeout:
		return true
	default:
		return false
	}
}

// Message returns the user-facing message of err: the Message of the first
// *Error in the chain, or err.Error() otherwise.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Message != "" {
		return fe.Message
	}
	return err.Error()
}
