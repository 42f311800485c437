package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fynity/fynity/internal/platform/httpx"
	"github.com/fynity/fynity/internal/rbac"
	"github.com/fynity/fynity/internal/shared"
	"github.com/fynity/fynity/internal/users"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	rbac       rbac.Middleware
	loginLimit func(http.Handler) http.Handler
}

// NewHandler constructs a Handler instance. loginLimit, when non-nil, wraps
// the login route.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware, loginLimit func(http.Handler) http.Handler) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw, loginLimit: loginLimit}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register/", h.handleRegister)
	if h.loginLimit != nil {
		r.With(h.loginLimit).Post("/login/", h.handleLogin)
	} else {
		r.Post("/login/", h.handleLogin)
	}
	r.Post("/token/refresh/", h.handleRefresh)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuth)
		r.Post("/logout/", h.handleLogout)
		r.Post("/change-password/", h.handleChangePassword)
	})
}

type sessionResponse struct {
	User    users.View `json:"user"`
	Access  string     `json:"access"`
	Refresh string     `json:"refresh"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Fail(w, shared.Validation(MsgRegistrationFailed, httpx.DecodeDetails(err)))
		return
	}
	sess, err := h.service.Register(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusCreated, newSessionResponse(sess), MsgRegistered)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Fail(w, shared.Validation(MsgCredentialsRequired, nil))
		return
	}
	sess, err := h.service.Login(r.Context(), req)
	if err != nil {
		if shared.IsKind(err, shared.KindAuthenticationFailed) {
			h.logger.Info("login failed", slog.String("remote", r.RemoteAddr))
		}
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, newSessionResponse(sess), MsgLoggedIn)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Fail(w, shared.Validation(MsgRefreshRequired, nil))
		return
	}
	if err := h.service.Logout(r.Context(), rbac.PrincipalFromContext(r.Context()), req.Refresh); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, nil, MsgLoggedOut)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Fail(w, shared.Validation(MsgRefreshRequired, nil))
		return
	}
	pair, err := h.service.Refresh(r.Context(), req.Refresh)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, pair, MsgTokenRefreshed)
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Fail(w, shared.Validation(MsgPasswordChangeFailed, nil))
		return
	}
	if err := h.service.ChangePassword(r.Context(), rbac.PrincipalFromContext(r.Context()), req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, nil, MsgPasswordChanged)
}

func newSessionResponse(sess Session) sessionResponse {
	return sessionResponse{
		User:    sess.Account.View(),
		Access:  sess.Tokens.Access,
		Refresh: sess.Tokens.Refresh,
	}
}
