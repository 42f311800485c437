package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fynity/fynity/internal/rbac"
	"github.com/fynity/fynity/internal/shared"
	"github.com/fynity/fynity/internal/users"
)

func newTestRouter(t *testing.T, env *testEnv, loginLimit func(http.Handler) http.Handler) http.Handler {
	t.Helper()
	mw := rbac.Middleware{Verifier: env.tokens, Accounts: env.svc, Logger: discardLogger()}
	r := chi.NewRouter()
	r.Route("/api/accounts", func(r chi.Router) {
		NewHandler(discardLogger(), env.svc, mw, loginLimit).MountRoutes(r)
		users.NewHandler(discardLogger(), users.NewService(env.repo, env.tokens, nil, discardLogger()), mw).MountRoutes(r)
	})
	return r
}

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Message string              `json:"message"`
	Error   string              `json:"error"`
	Details map[string][]string `json:"details"`
}

type sessionData struct {
	User    map[string]any `json:"user"`
	Access  string         `json:"access"`
	Refresh string         `json:"refresh"`
}

func call(t *testing.T, h http.Handler, method, path, token, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return rr.Code, env
}

func TestHTTPAccountLifecycle(t *testing.T) {
	env := newTestEnv(t)
	h := newTestRouter(t, env, nil)

	code, body := call(t, h, http.MethodPost, "/api/accounts/register/", "",
		`{"email":"a@x.com","username":"alice","password":"P@ssw0rd1","password2":"P@ssw0rd1"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.True(t, body.Success)
	assert.Equal(t, MsgRegistered, body.Message)
	var registered sessionData
	require.NoError(t, json.Unmarshal(body.Data, &registered))
	assert.Equal(t, "free", registered.User["role"])
	assert.NotContains(t, registered.User, "password")
	assert.NotEmpty(t, registered.Access)

	code, body = call(t, h, http.MethodPost, "/api/accounts/register/", "",
		`{"email":"a@x.com","username":"alice","password":"P@ssw0rd1","password2":"P@ssw0rd1"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "ValidationError", body.Error)
	assert.Equal(t, MsgRegistrationFailed, body.Message)
	assert.Contains(t, body.Details, "email")
	assert.Contains(t, body.Details, "username")

	code, body = call(t, h, http.MethodPost, "/api/accounts/login/", "", `{"email":"a@x.com","password":"P@ssw0rd1"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, MsgLoggedIn, body.Message)
	var login sessionData
	require.NoError(t, json.Unmarshal(body.Data, &login))
	assert.NotEqual(t, registered.Refresh, login.Refresh)

	code, body = call(t, h, http.MethodGet, "/api/accounts/me/", login.Access, "")
	require.Equal(t, http.StatusOK, code)
	var me map[string]any
	require.NoError(t, json.Unmarshal(body.Data, &me))
	assert.Equal(t, "alice", me["username"])

	code, body = call(t, h, http.MethodPost, "/api/accounts/token/refresh/", "", `{"refresh":"`+login.Refresh+`"}`)
	require.Equal(t, http.StatusOK, code)
	var rotated TokenPair
	require.NoError(t, json.Unmarshal(body.Data, &rotated))
	assert.NotEmpty(t, rotated.Refresh)

	code, body = call(t, h, http.MethodPost, "/api/accounts/logout/", login.Access, `{"refresh":"`+rotated.Refresh+`"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, MsgLoggedOut, body.Message)
	assert.Equal(t, "null", string(body.Data))

	code, body = call(t, h, http.MethodPost, "/api/accounts/logout/", login.Access, `{"refresh":"`+rotated.Refresh+`"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "TokenError", body.Error)
	assert.Equal(t, MsgInvalidRefresh, body.Message)

	code, body = call(t, h, http.MethodPost, "/api/accounts/logout/", login.Access, `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "ValidationError", body.Error)
	assert.Equal(t, MsgRefreshRequired, body.Message)
}

func TestHTTPLoginErrors(t *testing.T) {
	env := newTestEnv(t)
	registerAlice(t, env)
	h := newTestRouter(t, env, nil)

	code, body := call(t, h, http.MethodPost, "/api/accounts/login/", "", `{"email":"a@x.com"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, MsgCredentialsRequired, body.Message)

	code, wrong := call(t, h, http.MethodPost, "/api/accounts/login/", "", `{"email":"a@x.com","password":"wrong-pass"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	code2, unknown := call(t, h, http.MethodPost, "/api/accounts/login/", "", `{"email":"z@x.com","password":"wrong-pass"}`)
	assert.Equal(t, code, code2)
	assert.Equal(t, wrong, unknown)
	assert.Equal(t, "AuthenticationFailed", wrong.Error)
	assert.False(t, wrong.Success)
}

func TestHTTPProtectedRoutesNeedToken(t *testing.T) {
	env := newTestEnv(t)
	sess := registerAlice(t, env)
	h := newTestRouter(t, env, nil)

	code, body := call(t, h, http.MethodPost, "/api/accounts/logout/", "", `{"refresh":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "NotAuthenticated", body.Error)
	assert.Equal(t, rbac.MsgCredentialsMissing, body.Message)

	code, body = call(t, h, http.MethodPost, "/api/accounts/change-password/", sess.Tokens.Refresh, `{}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "TokenError", body.Error)
	assert.Equal(t, rbac.MsgTokenNotValid, body.Message)

	env.clock.Advance(testTokenConfig.AccessTTL)
	code, _ = call(t, h, http.MethodGet, "/api/accounts/me/", sess.Tokens.Access, "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestHTTPChangePassword(t *testing.T) {
	env := newTestEnv(t)
	sess := registerAlice(t, env)
	h := newTestRouter(t, env, nil)

	code, body := call(t, h, http.MethodPost, "/api/accounts/change-password/", sess.Tokens.Access,
		`{"old_password":"wrong","new_password":"N3w-Secret!"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "ValidationError", body.Error)
	assert.Equal(t, []string{MsgCurrentPasswordInvalid}, body.Details["old_password"])

	code, body = call(t, h, http.MethodPost, "/api/accounts/change-password/", sess.Tokens.Access,
		`{"old_password":"P@ssw0rd1","new_password":"N3w-Secret!"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, MsgPasswordChanged, body.Message)

	code, _ = call(t, h, http.MethodPost, "/api/accounts/token/refresh/", "", `{"refresh":"`+sess.Tokens.Refresh+`"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestHTTPDeactivatedAccountLosesAccessImmediately(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := registerAlice(t, env)
	h := newTestRouter(t, env, nil)

	code, _ := call(t, h, http.MethodGet, "/api/accounts/me/", sess.Tokens.Access, "")
	require.Equal(t, http.StatusOK, code)

	inactive := false
	_, err := env.repo.SetAccess(ctx, sess.Account.ID, nil, &inactive)
	require.NoError(t, err)
	_, err = env.tokens.RevokeAll(ctx, sess.Account.ID)
	require.NoError(t, err)

	requests := []struct{ method, path, body string }{
		{http.MethodGet, "/api/accounts/me/", ""},
		{http.MethodPatch, "/api/accounts/me/", `{"bio":"still here"}`},
		{http.MethodPost, "/api/accounts/change-password/", `{"old_password":"P@ssw0rd1","new_password":"N3w-Secret!"}`},
	}
	for _, rq := range requests {
		code, body := call(t, h, rq.method, rq.path, sess.Tokens.Access, rq.body)
		assert.Equal(t, http.StatusForbidden, code, rq.method+" "+rq.path)
		assert.Equal(t, "AccountDisabled", body.Error)
		assert.Equal(t, MsgAccountDisabled, body.Message)
	}

	acc, err := env.repo.FindByID(ctx, sess.Account.ID)
	require.NoError(t, err)
	assert.Empty(t, acc.Profile.Bio)
	_, err = env.svc.Login(ctx, LoginRequest{Email: "a@x.com", Password: "P@ssw0rd1"})
	assert.True(t, shared.IsKind(err, shared.KindAccountDisabled))
}

func TestHTTPDemotedAdminLosesAdminRoutes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := registerAlice(t, env)
	target := env.repo.Put(users.Account{Email: "b@x.com", Username: "bob", IsActive: true})
	h := newTestRouter(t, env, nil)

	super := rbac.RoleSuperAdmin
	_, err := env.repo.SetAccess(ctx, sess.Account.ID, &super, nil)
	require.NoError(t, err)
	admin, err := env.svc.Login(ctx, LoginRequest{Email: "a@x.com", Password: "P@ssw0rd1"})
	require.NoError(t, err)

	path := "/api/accounts/" + strconv.FormatInt(target.ID, 10) + "/access/"
	code, _ := call(t, h, http.MethodPatch, path, admin.Tokens.Access, `{"role":"subscriber"}`)
	require.Equal(t, http.StatusOK, code)

	free := rbac.RoleFree
	_, err = env.repo.SetAccess(ctx, sess.Account.ID, &free, nil)
	require.NoError(t, err)

	code, body := call(t, h, http.MethodPatch, path, admin.Tokens.Access, `{"role":"super_admin"}`)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "PermissionDenied", body.Error)
	stored, err := env.repo.FindByID(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleSubscriber, stored.Role)
}

func TestHTTPDeletedAccountTokenIsRejected(t *testing.T) {
	env := newTestEnv(t)
	h := newTestRouter(t, env, nil)
	pair, err := env.tokens.Issue(context.Background(), 404, rbac.RoleFree)
	require.NoError(t, err)

	code, body := call(t, h, http.MethodGet, "/api/accounts/me/", pair.Access, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "TokenError", body.Error)
	assert.Equal(t, rbac.MsgTokenNotValid, body.Message)
}

func TestHTTPRegisterTypeMismatchNamesField(t *testing.T) {
	env := newTestEnv(t)
	h := newTestRouter(t, env, nil)

	code, body := call(t, h, http.MethodPost, "/api/accounts/register/", "",
		`{"email":"a@x.com","username":"alice","password":"P@ssw0rd1","password2":"P@ssw0rd1","current_year":"x"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "ValidationError", body.Error)
	assert.Equal(t, MsgRegistrationFailed, body.Message)
	assert.Equal(t, []string{"A valid integer is required."}, body.Details["current_year"])

	code, body = call(t, h, http.MethodPost, "/api/accounts/register/", "", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, MsgRegistrationFailed, body.Message)
	assert.Empty(t, body.Details)
}

func TestHTTPLoginRateLimit(t *testing.T) {
	env := newTestEnv(t)
	h := newTestRouter(t, env, httprate.LimitByIP(2, time.Minute))

	for i := 0; i < 2; i++ {
		code, _ := call(t, h, http.MethodPost, "/api/accounts/login/", "", `{"email":"a@x.com","password":"x"}`)
		assert.Equal(t, http.StatusUnauthorized, code)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/accounts/login/", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}
