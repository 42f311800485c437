package auth

import "errors"

// Token failure reasons. Callers see them as a single TokenError; the
// reason is kept for logs and metrics.
var (
	ErrMalformed        = errors.New("token malformed")
	ErrExpired          = errors.New("token expired")
	ErrRevoked          = errors.New("token revoked")
	ErrSignatureInvalid = errors.New("token signature invalid")
)

// TokenError reports why a token was rejected.
type TokenError struct {
	Reason error
	Err    error
}

func (e *TokenError) Error() string {
	if e.Err != nil {
		return e.Reason.Error() + ": " + e.Err.Error()
	}
	return e.Reason.Error()
}

// Unwrap exposes both the reason sentinel and the underlying cause.
func (e *TokenError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Reason, e.Err}
	}
	return []error{e.Reason}
}

func tokenErr(reason, cause error) error {
	return &TokenError{Reason: reason, Err: cause}
}

// IsTokenError reports whether err came from token verification.
func IsTokenError(err error) bool {
	var te *TokenError
	return errors.As(err, &te)
}

// Reason returns a short label for the token failure in err.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrRevoked):
		return "revoked"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	default:
		return "error"
	}
}
