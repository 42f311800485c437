package colleges

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fynity/fynity/internal/rbac"
	"github.com/fynity/fynity/internal/shared"
	"github.com/fynity/fynity/internal/users"
)

// Messages returned by college endpoints.
const (
	MsgCollegeCreated  = "College created successfully."
	MsgCreateFailed    = "College creation failed."
	MsgCollegeNotFound = "College not found."
	MsgCodeTaken       = "college with this code already exists."
)

// StudentLister lists the accounts attached to a college.
type StudentLister interface {
	ListByCollege(ctx context.Context, p rbac.Principal, collegeID int64) ([]users.Account, error)
}

// Service handles college business logic.
type Service struct {
	repo     Repository
	students StudentLister
	audit    shared.AuditRecorder
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService builds Service instance.
func NewService(repo Repository, students StudentLister, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, students: students, audit: audit, validate: shared.NewValidator(), logger: logger}
}

// List returns active colleges.
func (s *Service) List(ctx context.Context) ([]College, error) {
	return s.repo.ListActive(ctx)
}

// Create registers a college. Only super admins may create colleges.
func (s *Service) Create(ctx context.Context, p rbac.Principal, req CreateRequest) (College, error) {
	if !rbac.IsSuperAdmin(p) {
		return College{}, shared.PermissionDenied(rbac.MsgPermissionDenied)
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	details := shared.Details{}
	if err := shared.CollectValidation(details, s.validate.Struct(req)); err != nil {
		return College{}, err
	}
	if len(details) > 0 {
		return College{}, shared.Validation(MsgCreateFailed, details)
	}
	c, err := s.repo.Create(ctx, req)
	if errors.Is(err, ErrDuplicateCode) {
		details.Add("code", MsgCodeTaken)
		return College{}, shared.Validation(MsgCreateFailed, details).Wrap(err)
	}
	if err != nil {
		return College{}, err
	}
	if s.audit != nil {
		entry := shared.AuditLog{
			ActorID:  p.AccountID,
			Action:   shared.AuditCollegeCreated,
			Entity:   "college",
			EntityID: strconv.FormatInt(c.ID, 10),
			Meta:     map[string]any{"code": c.Code},
		}
		if err := s.audit.Record(ctx, entry); err != nil {
			s.logger.Warn("audit record failed", slog.String("action", entry.Action), slog.Any("error", err))
		}
	}
	return c, nil
}

// Students returns the accounts of an existing college.
func (s *Service) Students(ctx context.Context, p rbac.Principal, collegeID int64) ([]users.Account, error) {
	if _, err := s.repo.Get(ctx, collegeID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NotFound(MsgCollegeNotFound)
		}
		return nil, err
	}
	return s.students.ListByCollege(ctx, p, collegeID)
}
