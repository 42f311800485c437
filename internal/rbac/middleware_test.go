package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fynity/fynity/internal/shared"
)

type stubVerifier struct {
	principals map[string]Principal
}

func (s stubVerifier) AuthenticateAccess(token string) (Principal, error) {
	p, ok := s.principals[token]
	if !ok {
		return Principal{}, errors.New("invalid token")
	}
	return p, nil
}

func newTestMiddleware() Middleware {
	return Middleware{Verifier: stubVerifier{principals: map[string]Principal{
		"free-token":  {AccountID: 1, Role: RoleFree},
		"admin-token": {AccountID: 2, Role: RoleSuperAdmin},
	}}}
}

func serve(t *testing.T, h http.Handler, authz string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var body map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	}
	return rr, body
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := PrincipalFromContext(r.Context())
		w.Header().Set("X-Account", string(p.Role))
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireAuth(t *testing.T) {
	m := newTestMiddleware()
	h := m.RequireAuth(okHandler())

	rr, body := serve(t, h, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "NotAuthenticated", body["error"])

	rr, body = serve(t, h, "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "TokenError", body["error"])

	rr, _ = serve(t, h, "bearer free-token")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "free", rr.Header().Get("X-Account"))
}

type accountTable map[int64]Principal

func (a accountTable) CheckPrincipal(_ context.Context, p Principal) (Principal, error) {
	current, ok := a[p.AccountID]
	if !ok {
		return Principal{}, shared.AccountDisabled("This account has been disabled.")
	}
	return current, nil
}

func TestRequireAuthReloadsAccount(t *testing.T) {
	m := newTestMiddleware()
	m.Accounts = accountTable{2: {AccountID: 2, Role: RoleFree}}
	admins := m.RequireAuth(m.RequireAny(IsSuperAdmin)(okHandler()))

	rr, body := serve(t, admins, "Bearer admin-token")
	assert.Equal(t, http.StatusForbidden, rr.Code, "stored role wins over the token claim")
	assert.Equal(t, "PermissionDenied", body["error"])

	rr, body = serve(t, m.RequireAuth(okHandler()), "Bearer free-token")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "AccountDisabled", body["error"])

	rr, _ = serve(t, m.RequireAuth(okHandler()), "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "the token is verified before the account")
}

func TestRequireAnyAndAll(t *testing.T) {
	m := newTestMiddleware()
	admins := m.RequireAuth(m.RequireAny(IsCollegeAdmin, IsSuperAdmin)(okHandler()))
	strict := m.RequireAuth(m.RequireAll(IsSubscriber, IsSuperAdmin)(okHandler()))

	rr, body := serve(t, admins, "Bearer free-token")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "PermissionDenied", body["error"])

	rr, _ = serve(t, admins, "Bearer admin-token")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr, _ = serve(t, strict, "Bearer admin-token")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr, _ = serve(t, strict, "Bearer free-token")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRequireWithoutPrincipal(t *testing.T) {
	m := newTestMiddleware()
	rr, body := serve(t, m.RequireAny(IsSubscriber)(okHandler()), "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "NotAuthenticated", body["error"])
}

func TestBearerToken(t *testing.T) {
	cases := map[string]struct {
		header string
		token  string
		ok     bool
	}{
		"missing":      {"", "", false},
		"basic scheme": {"Basic abc", "", false},
		"no token":     {"Bearer ", "", false},
		"valid":        {"Bearer abc.def", "abc.def", true},
		"extra spaces": {"  Bearer   abc  ", "abc", true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			token, ok := BearerToken(req)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.token, token)
		})
	}
}
