package types

import "errors"

// Kind classifies an error for callers; the transport maps it to a status.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindDenied
	KindConflict
	KindNotFound
	KindUnavailable
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDenied:
		return "denied"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	case KindTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// Error is a classified sentinel. Compare with errors.Is.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string { return e.Reason }

func Validation(reason string) *Error  { return &Error{Kind: KindValidation, Reason: reason} }
func Denied(reason string) *Error      { return &Error{Kind: KindDenied, Reason: reason} }
func Conflict(reason string) *Error    { return &Error{Kind: KindConflict, Reason: reason} }
func NotFound(reason string) *Error    { return &Error{Kind: KindNotFound, Reason: reason} }
func Unavailable(reason string) *Error { return &Error{Kind: KindUnavailable, Reason: reason} }
func Timeout(reason string) *Error     { return &Error{Kind: KindTimeout, Reason: reason} }

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns a caller-safe reason. Unclassified errors are hidden.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return "internal error"
}

var (
	ErrEmptyIdentity    = Validation("player identity is required")
	ErrIdentityMismatch = Validation("identity does not match authenticated player")
	ErrMatchNotFound    = NotFound("match not found")
)
