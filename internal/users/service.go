package users

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/fynity/fynity/internal/rbac"
	"github.com/fynity/fynity/internal/shared"
)

// Messages returned by account endpoints.
const (
	MsgProfileUpdated      = "Profile updated successfully."
	MsgProfileUpdateFailed = "Profile update failed."
	MsgAccessUpdated       = "Account access updated."
	MsgAccessUpdateFailed  = "Account access update failed."
	MsgAccountNotFound     = "Account not found."
	MsgAccountDisabled     = "This account has been disabled."
)

// TokenRevoker revokes every refresh token of an account.
type TokenRevoker interface {
	RevokeAll(ctx context.Context, accountID int64) (int, error)
}

// Service implements the self-service and admin account operations.
type Service struct {
	repo     Repository
	revoker  TokenRevoker
	audit    shared.AuditRecorder
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService builds Service instance.
func NewService(repo Repository, revoker TokenRevoker, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, revoker: revoker, audit: audit, validate: NewValidator(), logger: logger}
}

// Me returns the caller's account. Deactivated accounts are refused.
func (s *Service) Me(ctx context.Context, p rbac.Principal) (Account, error) {
	if !p.Authenticated() {
		return Account{}, shared.NotAuthenticated(rbac.MsgCredentialsMissing)
	}
	acc, err := s.repo.FindByID(ctx, p.AccountID)
	if errors.Is(err, shared.ErrNotFound) {
		return Account{}, shared.NotAuthenticated(rbac.MsgCredentialsMissing)
	}
	if err != nil {
		return Account{}, err
	}
	if !acc.IsActive {
		return Account{}, shared.AccountDisabled(MsgAccountDisabled)
	}
	return acc, nil
}

// UpdateMe applies a partial update to the caller's account and profile.
func (s *Service) UpdateMe(ctx context.Context, p rbac.Principal, req UpdateRequest) (Account, error) {
	if !p.Authenticated() {
		return Account{}, shared.NotAuthenticated(rbac.MsgCredentialsMissing)
	}
	details := shared.Details{}
	if err := shared.CollectValidation(details, s.validate.Struct(req)); err != nil {
		return Account{}, err
	}
	if len(details) > 0 {
		return Account{}, shared.Validation(MsgProfileUpdateFailed, details)
	}
	current, err := s.Me(ctx, p)
	if err != nil {
		return Account{}, err
	}
	if !req.touchesAccount() && !req.touchesProfile() {
		return current, nil
	}
	acc, err := s.repo.Update(ctx, p.AccountID, req)
	if err != nil {
		if errors.Is(err, ErrUnknownCollege) {
			details.Add("college", "Invalid pk \""+formatID(req.College.Value)+"\" - object does not exist.")
			return Account{}, shared.Validation(MsgProfileUpdateFailed, details).Wrap(err)
		}
		return Account{}, err
	}
	s.record(ctx, shared.AccountAudit(p.AccountID, shared.AuditAccountUpdated, acc.ID, nil))
	return acc, nil
}

// Get returns an account visible to the caller: their own, or any for admins.
func (s *Service) Get(ctx context.Context, p rbac.Principal, id int64) (Account, error) {
	acc, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		if rbac.IsCollegeAdmin(p) {
			return Account{}, shared.NotFound(MsgAccountNotFound)
		}
		return Account{}, shared.PermissionDenied(rbac.MsgPermissionDenied)
	}
	if err != nil {
		return Account{}, err
	}
	if !rbac.IsOwnerOrAdmin(p, acc) {
		return Account{}, shared.PermissionDenied(rbac.MsgPermissionDenied)
	}
	return acc, nil
}

// SetAccess changes role and active flag. Any change revokes the target's
// refresh tokens so the new access level applies at the next refresh.
func (s *Service) SetAccess(ctx context.Context, p rbac.Principal, id int64, req AccessRequest) (Account, error) {
	if !rbac.IsSuperAdmin(p) {
		return Account{}, shared.PermissionDenied(rbac.MsgPermissionDenied)
	}
	details := shared.Details{}
	if err := shared.CollectValidation(details, s.validate.Struct(req)); err != nil {
		return Account{}, err
	}
	if req.Role == nil && req.IsActive == nil {
		details.Add("non_field_errors", "Provide role or is_active.")
	}
	if id == p.AccountID {
		details.Add("non_field_errors", "You cannot change your own access.")
	}
	if len(details) > 0 {
		return Account{}, shared.Validation(MsgAccessUpdateFailed, details)
	}
	var role *rbac.Role
	if req.Role != nil {
		r, _ := rbac.ParseRole(*req.Role)
		role = &r
	}
	acc, err := s.repo.SetAccess(ctx, id, role, req.IsActive)
	if errors.Is(err, shared.ErrNotFound) {
		return Account{}, shared.NotFound(MsgAccountNotFound)
	}
	if err != nil {
		return Account{}, err
	}
	if s.revoker != nil {
		n, err := s.revoker.RevokeAll(ctx, id)
		if err != nil {
			return Account{}, err
		}
		s.logger.Info("account access changed",
			slog.Int64("account_id", id),
			slog.String("role", string(acc.Role)),
			slog.Bool("active", acc.IsActive),
			slog.Int("revoked_tokens", n))
	}
	meta := map[string]any{"role": acc.Role, "is_active": acc.IsActive}
	s.record(ctx, shared.AccountAudit(p.AccountID, shared.AuditAccountAccessChanged, id, meta))
	return acc, nil
}

// ListByCollege returns the students of a college. College admins only
// see their own college.
func (s *Service) ListByCollege(ctx context.Context, p rbac.Principal, collegeID int64) ([]Account, error) {
	if !rbac.IsCollegeAdmin(p) {
		return nil, shared.PermissionDenied(rbac.MsgPermissionDenied)
	}
	if !rbac.IsSuperAdmin(p) {
		caller, err := s.repo.FindByID(ctx, p.AccountID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		if caller.CollegeID == nil || *caller.CollegeID != collegeID {
			return nil, shared.PermissionDenied(rbac.MsgPermissionDenied)
		}
	}
	return s.repo.ListByCollege(ctx, collegeID)
}

func (s *Service) record(ctx context.Context, entry shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", entry.Action), slog.Any("error", err))
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
