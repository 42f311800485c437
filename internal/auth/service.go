package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fynity/fynity/internal/rbac"
	"github.com/fynity/fynity/internal/shared"
	"github.com/fynity/fynity/internal/users"
)

// Messages returned by the authentication flows.
const (
	MsgRegistered             = "Account created successfully."
	MsgRegistrationFailed     = "Registration failed."
	MsgCredentialsRequired    = "Email and password are required."
	MsgInvalidCredentials     = "Invalid email or password."
	MsgAccountDisabled        = "This account has been disabled."
	MsgLoggedIn               = "Login successful."
	MsgRefreshRequired        = "Refresh token is required."
	MsgInvalidRefresh         = "Invalid or already expired refresh token."
	MsgLoggedOut              = "Logged out successfully."
	MsgTokenInvalid           = "Token is invalid or expired"
	MsgTokenRefreshed         = "Token refreshed."
	MsgPasswordChanged        = "Password changed successfully."
	MsgPasswordChangeFailed   = "Password change failed."
	MsgCurrentPasswordInvalid = "Current password is incorrect."
	MsgPasswordMismatch       = "Passwords do not match."
	MsgEmailTaken             = "user with this email already exists."
	MsgUsernameTaken          = "A user with that username already exists."
)

// Recorder receives authentication events for metrics.
type Recorder interface {
	AuthEvent(event, outcome string)
	TokenRejected(reason string)
}

type noopRecorder struct{}

func (noopRecorder) AuthEvent(string, string) {}
func (noopRecorder) TokenRejected(string)     {}

// RegisterRequest is the registration payload.
type RegisterRequest struct {
	Email            string `json:"email" validate:"required,email,max=254"`
	Username         string `json:"username" validate:"required,max=150,username"`
	FirstName        string `json:"first_name" validate:"max=150"`
	LastName         string `json:"last_name" validate:"max=150"`
	Mobile           string `json:"mobile" validate:"max=15"`
	Password         string `json:"password" validate:"required"`
	Password2        string `json:"password2" validate:"required"`
	IsCollegeStudent bool   `json:"is_college_student"`
	CollegeName      string `json:"college_name" validate:"max=200"`
	Branch           string `json:"branch" validate:"max=100"`
	CurrentYear      *int   `json:"current_year" validate:"omitempty,min=1,max=10"`
	Semester         *int   `json:"semester" validate:"omitempty,min=1,max=12"`
	RollNumber       string `json:"roll_number" validate:"max=50"`
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ChangePasswordRequest is the change-password payload.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// Session is returned by register and login.
type Session struct {
	Account users.Account
	Tokens  TokenPair
}

// Service orchestrates registration, login, logout, refresh and password
// changes.
type Service struct {
	accounts  users.Repository
	hasher    Hasher
	tokens    *TokenService
	audit     shared.AuditRecorder
	metrics   Recorder
	validate  *validator.Validate
	logger    *slog.Logger
	decoyHash string
}

// NewService constructs a Service. audit and metrics may be nil.
func NewService(accounts users.Repository, hasher Hasher, tokens *TokenService, audit shared.AuditRecorder, metrics Recorder, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopRecorder{}
	}
	// Unknown emails are verified against a decoy digest so that both
	// failure paths cost the same.
	seed := make([]byte, 16)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("auth: decoy seed: %w", err)
	}
	decoy, err := hasher.Hash(hex.EncodeToString(seed))
	if err != nil {
		return nil, fmt.Errorf("auth: decoy hash: %w", err)
	}
	return &Service{
		accounts:  accounts,
		hasher:    hasher,
		tokens:    tokens,
		audit:     audit,
		metrics:   metrics,
		validate:  shared.NewValidator(),
		logger:    logger,
		decoyHash: decoy,
	}, nil
}

// Register creates a free, active account with an empty profile and
// returns it with a fresh token pair.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (Session, error) {
	req.Email = users.NormalizeEmail(req.Email)
	req.Username = users.NormalizeUsername(req.Username)

	details := shared.Details{}
	if err := shared.CollectValidation(details, s.validate.Struct(req)); err != nil {
		return Session{}, err
	}
	if !details.Has("password") && !details.Has("password2") {
		for _, problem := range CheckPassword(req.Password, PasswordContext{
			Email:     req.Email,
			Username:  req.Username,
			FirstName: req.FirstName,
			LastName:  req.LastName,
		}) {
			details.Add("password", problem)
		}
		if !details.Has("password") && req.Password != req.Password2 {
			details.Add("password", MsgPasswordMismatch)
		}
	}
	if !details.Has("email") || !details.Has("username") {
		emailTaken, usernameTaken, err := s.accounts.Taken(ctx, req.Email, req.Username)
		if err != nil {
			return Session{}, err
		}
		if emailTaken && !details.Has("email") {
			details.Add("email", MsgEmailTaken)
		}
		if usernameTaken && !details.Has("username") {
			details.Add("username", MsgUsernameTaken)
		}
	}
	if len(details) > 0 {
		s.metrics.AuthEvent("register", "invalid")
		return Session{}, shared.Validation(MsgRegistrationFailed, details)
	}

	digest, err := s.hasher.Hash(req.Password)
	if err != nil {
		return Session{}, err
	}
	acc, err := s.accounts.Create(ctx, users.NewAccount{
		Email:            req.Email,
		Username:         req.Username,
		PasswordHash:     digest,
		FirstName:        strings.TrimSpace(req.FirstName),
		LastName:         strings.TrimSpace(req.LastName),
		Mobile:           strings.TrimSpace(req.Mobile),
		IsCollegeStudent: req.IsCollegeStudent,
		CollegeName:      req.CollegeName,
		Branch:           req.Branch,
		CurrentYear:      req.CurrentYear,
		Semester:         req.Semester,
		RollNumber:       req.RollNumber,
	})
	if err != nil {
		var dup *users.DuplicateError
		if errors.As(err, &dup) {
			msg := MsgEmailTaken
			if dup.Field == "username" {
				msg = MsgUsernameTaken
			}
			details.Add(dup.Field, msg)
			s.metrics.AuthEvent("register", "invalid")
			return Session{}, shared.Validation(MsgRegistrationFailed, details).Wrap(err)
		}
		return Session{}, err
	}

	pair, err := s.tokens.Issue(ctx, acc.ID, acc.Role)
	if err != nil {
		return Session{}, err
	}
	s.metrics.AuthEvent("register", "success")
	s.record(ctx, shared.AccountAudit(acc.ID, shared.AuditAccountRegistered, acc.ID, nil))
	s.logger.Info("account registered", slog.Int64("account_id", acc.ID))
	return Session{Account: acc, Tokens: pair}, nil
}

// Login verifies credentials and issues a token pair. Unknown emails and
// wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, req LoginRequest) (Session, error) {
	email := users.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		s.metrics.AuthEvent("login", "invalid")
		return Session{}, shared.Validation(MsgCredentialsRequired, nil)
	}

	acc, err := s.accounts.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return Session{}, err
	}
	if errors.Is(err, shared.ErrNotFound) {
		s.hasher.Verify(req.Password, s.decoyHash)
		s.metrics.AuthEvent("login", "failed")
		return Session{}, shared.AuthenticationFailed(MsgInvalidCredentials).Wrap(shared.ErrInvalidCredentials)
	}
	if !s.hasher.Verify(req.Password, acc.PasswordHash) {
		s.metrics.AuthEvent("login", "failed")
		return Session{}, shared.AuthenticationFailed(MsgInvalidCredentials).Wrap(shared.ErrInvalidCredentials)
	}
	if !acc.IsActive {
		s.metrics.AuthEvent("login", "disabled")
		return Session{}, shared.AccountDisabled(MsgAccountDisabled)
	}
	if s.hasher.NeedsRehash(acc.PasswordHash) {
		s.rehash(ctx, acc.ID, req.Password)
	}

	pair, err := s.tokens.Issue(ctx, acc.ID, acc.Role)
	if err != nil {
		return Session{}, err
	}
	s.metrics.AuthEvent("login", "success")
	s.record(ctx, shared.AccountAudit(acc.ID, shared.AuditAccountLogin, acc.ID, nil))
	return Session{Account: acc, Tokens: pair}, nil
}

// Logout revokes the caller's refresh token. Tokens that are malformed,
// expired, already revoked or issued to another account are rejected.
func (s *Service) Logout(ctx context.Context, p rbac.Principal, refresh string) error {
	if strings.TrimSpace(refresh) == "" {
		return shared.Validation(MsgRefreshRequired, nil)
	}
	claims, err := s.tokens.VerifyRefresh(ctx, refresh)
	if err == nil {
		if id, _ := claims.AccountID(); id != p.AccountID {
			err = tokenErr(ErrMalformed, errors.New("token belongs to another account"))
		}
	}
	if err == nil {
		err = s.tokens.Revoke(ctx, refresh)
	}
	if err != nil {
		if !IsTokenError(err) {
			return err
		}
		s.metrics.TokenRejected(Reason(err))
		s.metrics.AuthEvent("logout", "rejected")
		return shared.TokenError(MsgInvalidRefresh).WithStatus(http.StatusBadRequest).Wrap(err)
	}
	s.metrics.AuthEvent("logout", "success")
	s.record(ctx, shared.AccountAudit(p.AccountID, shared.AuditAccountLogout, p.AccountID, nil))
	return nil
}

// Refresh rotates a refresh token. The account is reloaded so the new
// access token carries its current role.
func (s *Service) Refresh(ctx context.Context, refresh string) (TokenPair, error) {
	if strings.TrimSpace(refresh) == "" {
		return TokenPair{}, shared.Validation(MsgRefreshRequired, nil)
	}
	pair, err := s.tokens.Rotate(ctx, refresh, s.resolveRole)
	if err != nil {
		if IsTokenError(err) {
			s.metrics.TokenRejected(Reason(err))
			s.metrics.AuthEvent("refresh", "rejected")
			return TokenPair{}, shared.TokenError(MsgTokenInvalid).Wrap(err)
		}
		if shared.IsKind(err, shared.KindAccountDisabled) {
			s.metrics.AuthEvent("refresh", "disabled")
		}
		return TokenPair{}, err
	}
	s.metrics.AuthEvent("refresh", "success")
	return pair, nil
}

func (s *Service) resolveRole(ctx context.Context, accountID int64) (rbac.Role, error) {
	acc, err := s.accounts.FindByID(ctx, accountID)
	if errors.Is(err, shared.ErrNotFound) {
		return "", tokenErr(ErrMalformed, errors.New("account no longer exists"))
	}
	if err != nil {
		return "", err
	}
	if !acc.IsActive {
		return "", shared.AccountDisabled(MsgAccountDisabled)
	}
	return acc.Role, nil
}

// CheckPrincipal reloads the account behind a verified access token. The
// returned principal carries the stored role; inactive accounts fail with
// AccountDisabled and deleted ones with a token error.
func (s *Service) CheckPrincipal(ctx context.Context, p rbac.Principal) (rbac.Principal, error) {
	role, err := s.resolveRole(ctx, p.AccountID)
	if IsTokenError(err) {
		s.metrics.TokenRejected(Reason(err))
		return rbac.Anonymous, shared.TokenError(rbac.MsgTokenNotValid).Wrap(err)
	}
	if err != nil {
		return rbac.Anonymous, err
	}
	return rbac.Principal{AccountID: p.AccountID, Role: role}, nil
}

// ChangePassword verifies the current password, applies the policy to the
// new one, stores it and revokes every outstanding refresh token.
func (s *Service) ChangePassword(ctx context.Context, p rbac.Principal, req ChangePasswordRequest) error {
	if !p.Authenticated() {
		return shared.NotAuthenticated(rbac.MsgCredentialsMissing)
	}
	details := shared.Details{}
	if err := shared.CollectValidation(details, s.validate.Struct(req)); err != nil {
		return err
	}
	acc, err := s.accounts.FindByID(ctx, p.AccountID)
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NotAuthenticated(rbac.MsgCredentialsMissing)
	}
	if err != nil {
		return err
	}
	if !acc.IsActive {
		return shared.AccountDisabled(MsgAccountDisabled)
	}
	if !details.Has("old_password") && !s.hasher.Verify(req.OldPassword, acc.PasswordHash) {
		details.Add("old_password", MsgCurrentPasswordInvalid)
	}
	if !details.Has("new_password") {
		for _, problem := range CheckPassword(req.NewPassword, PasswordContext{
			Email:     acc.Email,
			Username:  acc.Username,
			FirstName: acc.FirstName,
			LastName:  acc.LastName,
		}) {
			details.Add("new_password", problem)
		}
	}
	if len(details) > 0 {
		s.metrics.AuthEvent("change_password", "invalid")
		return shared.Validation(MsgPasswordChangeFailed, details)
	}

	digest, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(ctx, acc.ID, digest); err != nil {
		return err
	}
	revoked, err := s.tokens.RevokeAll(ctx, acc.ID)
	if err != nil {
		return err
	}
	s.metrics.AuthEvent("change_password", "success")
	s.record(ctx, shared.AccountAudit(acc.ID, shared.AuditAccountPasswordChanged, acc.ID, map[string]any{"revoked_tokens": revoked}))
	return nil
}

func (s *Service) rehash(ctx context.Context, accountID int64, password string) {
	digest, err := s.hasher.Hash(password)
	if err == nil {
		err = s.accounts.UpdatePassword(ctx, accountID, digest)
	}
	if err != nil {
		s.logger.Warn("password rehash failed", slog.Int64("account_id", accountID), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, entry shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", entry.Action), slog.Any("error", err))
	}
}
