package shared

import (
	"errors"
	"net/http"
	"sort"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicate indicates a unique constraint violation.
	ErrDuplicate = errors.New("duplicate entry")
)

// Kind classifies a failure for API consumers.
type Kind string

// Error kinds exposed in the response envelope.
const (
	KindValidation           Kind = "ValidationError"
	KindAuthenticationFailed Kind = "AuthenticationFailed"
	KindNotAuthenticated     Kind = "NotAuthenticated"
	KindAccountDisabled      Kind = "AccountDisabled"
	KindToken                Kind = "TokenError"
	KindPermissionDenied     Kind = "PermissionDenied"
	KindNotFound             Kind = "NotFound"
	KindThrottled            Kind = "Throttled"
	KindInternal             Kind = "InternalError"
)

// Details carries field level messages keyed by field name.
type Details map[string][]string

// Add appends a message for field.
func (d Details) Add(field, message string) {
	d[field] = append(d[field], message)
}

// Has reports whether field already has a message.
func (d Details) Has(field string) bool {
	return len(d[field]) > 0
}

// Fields returns the field names in stable order.
func (d Details) Fields() []string {
	out := make([]string, 0, len(d))
	for k := range d {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Error is a classified failure that is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	Details Details
	// Status overrides the default HTTP status of Kind when non-zero.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap attaches an underlying cause.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// WithStatus overrides the HTTP status.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// StatusCode resolves the HTTP status for the error.
func (e *Error) StatusCode() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthenticationFailed, KindNotAuthenticated, KindToken:
		return http.StatusUnauthorized
	case KindAccountDisabled, KindPermissionDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindThrottled:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Validation builds a ValidationError with optional field details.
func Validation(message string, details Details) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

// AuthenticationFailed builds an AuthenticationFailed error.
func AuthenticationFailed(message string) *Error {
	return &Error{Kind: KindAuthenticationFailed, Message: message}
}

// NotAuthenticated is returned when a protected route has no credentials.
func NotAuthenticated(message string) *Error {
	return &Error{Kind: KindNotAuthenticated, Message: message}
}

// AccountDisabled builds an AccountDisabled error.
func AccountDisabled(message string) *Error {
	return &Error{Kind: KindAccountDisabled, Message: message}
}

// TokenError builds a TokenError.
func TokenError(message string) *Error {
	return &Error{Kind: KindToken, Message: message}
}

// PermissionDenied builds a PermissionDenied error.
func PermissionDenied(message string) *Error {
	return &Error{Kind: KindPermissionDenied, Message: message}
}

// NotFound builds a NotFound error.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message, Err: ErrNotFound}
}

// Throttled is returned when a client exceeds a rate limit.
func Throttled(message string) *Error {
	return &Error{Kind: KindThrottled, Message: message}
}

// AsError extracts a classified error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}
