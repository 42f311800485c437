package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fynity/fynity/internal/platform/httpx"
	"github.com/fynity/fynity/internal/shared"
)

// Messages written by the authorization middleware.
const (
	MsgCredentialsMissing = "Authentication credentials were not provided."
	MsgTokenNotValid      = "Given token not valid for any token type"
	MsgPermissionDenied   = "You do not have permission to perform this action."
)

// AccessVerifier turns a bearer access token into a principal.
type AccessVerifier interface {
	AuthenticateAccess(token string) (Principal, error)
}

// AccountChecker reloads the account behind a verified principal. It returns
// the principal carrying the stored role, or an error when the account may no
// longer authenticate.
type AccountChecker interface {
	CheckPrincipal(ctx context.Context, p Principal) (Principal, error)
}

// Middleware wires authentication and authorization helpers for HTTP handlers.
// With Accounts unset the principal is taken from the token claims alone.
type Middleware struct {
	Verifier AccessVerifier
	Accounts AccountChecker
	Logger   *slog.Logger
}

// RequireAuth verifies the bearer access token and stores the principal in
// the request context. Deactivated accounts are rejected and role changes
// apply immediately when Accounts is set.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			httpx.Fail(w, shared.NotAuthenticated(MsgCredentialsMissing))
			return
		}
		principal, err := m.Verifier.AuthenticateAccess(token)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Debug("access token rejected", slog.Any("error", err))
			}
			httpx.Fail(w, shared.TokenError(MsgTokenNotValid).Wrap(err))
			return
		}
		if m.Accounts != nil {
			principal, err = m.Accounts.CheckPrincipal(r.Context(), principal)
			if err != nil {
				httpx.RespondError(w, m.Logger, err)
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	})
}

// RequireAny ensures the current principal satisfies at least one predicate.
func (m Middleware) RequireAny(preds ...Predicate) func(http.Handler) http.Handler {
	return m.require(preds, anyOf)
}

// RequireAll ensures the current principal satisfies every predicate.
func (m Middleware) RequireAll(preds ...Predicate) func(http.Handler) http.Handler {
	return m.require(preds, allOf)
}

func (m Middleware) require(preds []Predicate, eval func(Principal, []Predicate) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if !principal.Authenticated() {
				httpx.Fail(w, shared.NotAuthenticated(MsgCredentialsMissing))
				return
			}
			if !eval(principal, preds) {
				if m.Logger != nil {
					m.Logger.Warn("rbac denied",
						slog.Int64("account_id", principal.AccountID),
						slog.String("role", string(principal.Role)),
						slog.String("path", r.URL.Path))
				}
				httpx.Fail(w, shared.PermissionDenied(MsgPermissionDenied))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func anyOf(p Principal, preds []Predicate) bool {
	if len(preds) == 0 {
		return true
	}
	for _, pred := range preds {
		if pred(p) {
			return true
		}
	}
	return false
}

func allOf(p Principal, preds []Predicate) bool {
	for _, pred := range preds {
		if !pred(p) {
			return false
		}
	}
	return true
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
