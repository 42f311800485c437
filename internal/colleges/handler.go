package colleges

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fynity/fynity/internal/platform/httpx"
	"github.com/fynity/fynity/internal/rbac"
	"github.com/fynity/fynity/internal/shared"
	"github.com/fynity/fynity/internal/users"
)

// Handler manages college endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw}
}

// MountRoutes registers college routes. Listing is public.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuth)
		r.With(h.rbac.RequireAny(rbac.IsSuperAdmin)).Post("/", h.create)
		r.With(h.rbac.RequireAny(rbac.IsCollegeAdmin)).Get("/{id}/students/", h.students)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []College{}
	}
	httpx.Success(w, http.StatusOK, items, "")
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Fail(w, shared.Validation(MsgCreateFailed, httpx.DecodeDetails(err)))
		return
	}
	c, err := h.service.Create(r.Context(), rbac.PrincipalFromContext(r.Context()), req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusCreated, c, MsgCollegeCreated)
}

func (h *Handler) students(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Fail(w, shared.NotFound(MsgCollegeNotFound))
		return
	}
	accounts, err := h.service.Students(r.Context(), rbac.PrincipalFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, users.Views(accounts), "")
}
