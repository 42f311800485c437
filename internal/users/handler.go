package users

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fynity/fynity/internal/platform/httpx"
	"github.com/fynity/fynity/internal/rbac"
	"github.com/fynity/fynity/internal/shared"
)

// AccountService is the behaviour the handler depends on.
type AccountService interface {
	Me(ctx context.Context, p rbac.Principal) (Account, error)
	UpdateMe(ctx context.Context, p rbac.Principal, req UpdateRequest) (Account, error)
	Get(ctx context.Context, p rbac.Principal, id int64) (Account, error)
	SetAccess(ctx context.Context, p rbac.Principal, id int64, req AccessRequest) (Account, error)
}

// Handler manages account endpoints.
type Handler struct {
	logger  *slog.Logger
	service AccountService
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service AccountService, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw}
}

// MountRoutes registers account routes. Every route requires a bearer token.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuth)
		r.Get("/me/", h.me)
		r.Patch("/me/", h.updateMe)
		r.Get("/{id}/", h.get)
		r.With(h.rbac.RequireAny(rbac.IsSuperAdmin)).Patch("/{id}/access/", h.setAccess)
	})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	acc, err := h.service.Me(r.Context(), rbac.PrincipalFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, acc.View(), "")
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Fail(w, shared.Validation(MsgProfileUpdateFailed, httpx.DecodeDetails(err)))
		return
	}
	acc, err := h.service.UpdateMe(r.Context(), rbac.PrincipalFromContext(r.Context()), req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, acc.View(), MsgProfileUpdated)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	acc, err := h.service.Get(r.Context(), rbac.PrincipalFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, acc.View(), "")
}

func (h *Handler) setAccess(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	var req AccessRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Fail(w, shared.Validation(MsgAccessUpdateFailed, httpx.DecodeDetails(err)))
		return
	}
	acc, err := h.service.SetAccess(r.Context(), rbac.PrincipalFromContext(r.Context()), id, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, acc.View(), MsgAccessUpdated)
}

func accountID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Fail(w, shared.NotFound(MsgAccountNotFound))
		return 0, false
	}
	return id, true
}
