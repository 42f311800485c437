package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fynity/fynity/internal/rbac"
	"github.com/fynity/fynity/internal/shared"
)

// TokenConfig configures token signing and lifetimes.
type TokenConfig struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// RoleResolver returns the current role of an account, or an error when
// the account may no longer obtain tokens.
type RoleResolver func(ctx context.Context, accountID int64) (rbac.Role, error)

// TokenService issues, verifies and revokes access/refresh token pairs.
type TokenService struct {
	cfg       TokenConfig
	registry  Registry
	blacklist *Blacklist
	logger    *slog.Logger
	now       func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(cfg TokenConfig, registry Registry, blacklist *Blacklist, logger *slog.Logger) (*TokenService, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth: token secret is required")
	}
	if registry == nil {
		return nil, errors.New("auth: token registry is required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("auth: token lifetimes must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenService{
		cfg:       cfg,
		registry:  registry,
		blacklist: blacklist,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// WithClock replaces the time source.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// Issue starts a new refresh family for the account and returns a pair.
func (s *TokenService) Issue(ctx context.Context, accountID int64, role rbac.Role) (TokenPair, error) {
	pair, rec, err := s.mint(accountID, role, uuid.New())
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.registry.Record(ctx, rec); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// VerifyAccess checks signature, expiry and type of an access token. The
// registry is not consulted.
func (s *TokenService) VerifyAccess(token string) (*Claims, error) {
	return s.parse(token, TokenAccess)
}

// AuthenticateAccess verifies token and returns the principal it asserts.
func (s *TokenService) AuthenticateAccess(token string) (rbac.Principal, error) {
	claims, err := s.VerifyAccess(token)
	if err != nil {
		return rbac.Anonymous, err
	}
	id, _ := claims.AccountID()
	return rbac.Principal{AccountID: id, Role: claims.Role}, nil
}

// VerifyRefresh checks a refresh token including its revocation state.
func (s *TokenService) VerifyRefresh(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.parse(token, TokenRefresh)
	if err != nil {
		return nil, err
	}
	if _, err := s.checkLive(ctx, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Revoke blacklists a structurally valid refresh token. Revoking an
// already revoked token succeeds.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	claims, err := s.parse(token, TokenRefresh)
	if err != nil {
		return err
	}
	rec := recordFromClaims(claims)
	if err := s.registry.Revoke(ctx, rec, s.now()); err != nil {
		return err
	}
	s.blacklistRecords(ctx, rec)
	return nil
}

// Rotate exchanges a live refresh token for a new pair in the same family.
// Presenting a token that was already revoked is treated as theft and
// revokes the whole family. Of two concurrent rotations of one token only
// one succeeds, and the loser then revokes the winner's pair as well.
func (s *TokenService) Rotate(ctx context.Context, refresh string, resolve RoleResolver) (TokenPair, error) {
	claims, err := s.parse(refresh, TokenRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	current, err := s.checkLive(ctx, claims)
	if err != nil {
		if errors.Is(err, ErrRevoked) {
			s.revokeFamily(ctx, recordFromClaims(claims))
		}
		return TokenPair{}, err
	}
	role, err := resolve(ctx, current.AccountID)
	if err != nil {
		return TokenPair{}, err
	}
	pair, next, err := s.mint(current.AccountID, role, current.FamilyID)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.registry.Rotate(ctx, current.JTI, next, s.now()); err != nil {
		if errors.Is(err, ErrRevoked) {
			s.revokeFamily(ctx, current)
			return TokenPair{}, tokenErr(ErrRevoked, nil)
		}
		return TokenPair{}, err
	}
	s.blacklistRecords(ctx, current)
	return pair, nil
}

// RevokeAll revokes every outstanding refresh token of the account.
func (s *TokenService) RevokeAll(ctx context.Context, accountID int64) (int, error) {
	revoked, err := s.registry.RevokeAccount(ctx, accountID, s.now())
	if err != nil {
		return 0, err
	}
	s.blacklistRecords(ctx, revoked...)
	return len(revoked), nil
}

// Sweep deletes registry rows that expired more than retention ago.
func (s *TokenService) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	return s.registry.DeleteExpired(ctx, s.now().Add(-retention))
}

func (s *TokenService) mint(accountID int64, role rbac.Role, family uuid.UUID) (TokenPair, RefreshRecord, error) {
	now := s.now().Truncate(time.Second)
	subject := strconv.FormatInt(accountID, 10)

	access := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
		},
		TokenType: TokenAccess,
		Role:      role,
	}
	rec := RefreshRecord{
		JTI:       uuid.New(),
		AccountID: accountID,
		FamilyID:  family,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
	}
	refresh := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   subject,
			ID:        rec.JTI.String(),
			IssuedAt:  jwt.NewNumericDate(rec.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(rec.ExpiresAt),
		},
		TokenType: TokenRefresh,
		Family:    family.String(),
	}

	signedAccess, err := s.sign(access)
	if err != nil {
		return TokenPair{}, RefreshRecord{}, err
	}
	signedRefresh, err := s.sign(refresh)
	if err != nil {
		return TokenPair{}, RefreshRecord{}, err
	}
	return TokenPair{Access: signedAccess, Refresh: signedRefresh}, rec, nil
}

func (s *TokenService) sign(claims Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

func (s *TokenService) parse(raw string, want TokenType) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, tokenErr(ErrMalformed, nil)
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, tokenErr(ErrExpired, err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, tokenErr(ErrSignatureInvalid, err)
		default:
			return nil, tokenErr(ErrMalformed, err)
		}
	}
	if claims.TokenType != want {
		return nil, tokenErr(ErrMalformed, fmt.Errorf("unexpected token type %q", claims.TokenType))
	}
	if _, err := claims.AccountID(); err != nil {
		return nil, tokenErr(ErrMalformed, errors.New("invalid subject"))
	}
	switch want {
	case TokenAccess:
		if !claims.Role.Valid() {
			return nil, tokenErr(ErrMalformed, errors.New("invalid role"))
		}
	case TokenRefresh:
		if _, err := uuid.Parse(claims.ID); err != nil {
			return nil, tokenErr(ErrMalformed, errors.New("invalid jti"))
		}
		if _, err := uuid.Parse(claims.Family); err != nil {
			return nil, tokenErr(ErrMalformed, errors.New("invalid family"))
		}
	}
	return claims, nil
}

// checkLive consults the blacklist then the registry. Tokens unknown to the
// registry are treated as revoked.
func (s *TokenService) checkLive(ctx context.Context, claims *Claims) (RefreshRecord, error) {
	jti := uuid.MustParse(claims.ID)
	hit, err := s.blacklist.Contains(ctx, jti)
	if err != nil {
		s.logger.Warn("token blacklist lookup failed", slog.Any("error", err))
	}
	if hit {
		return RefreshRecord{}, tokenErr(ErrRevoked, nil)
	}
	rec, err := s.registry.Lookup(ctx, jti)
	if errors.Is(err, shared.ErrNotFound) {
		return RefreshRecord{}, tokenErr(ErrRevoked, errors.New("unknown token"))
	}
	if err != nil {
		return RefreshRecord{}, err
	}
	if rec.Revoked() {
		s.blacklistRecords(ctx, rec)
		return RefreshRecord{}, tokenErr(ErrRevoked, nil)
	}
	if id, _ := claims.AccountID(); id != rec.AccountID {
		return RefreshRecord{}, tokenErr(ErrMalformed, errors.New("subject mismatch"))
	}
	return rec, nil
}

func (s *TokenService) revokeFamily(ctx context.Context, rec RefreshRecord) {
	revoked, err := s.registry.RevokeFamily(ctx, rec.FamilyID, s.now())
	if err != nil {
		s.logger.Error("revoke token family", slog.String("family", rec.FamilyID.String()), slog.Any("error", err))
		return
	}
	if len(revoked) > 0 {
		s.logger.Warn("refresh token reuse detected",
			slog.Int64("account_id", rec.AccountID),
			slog.String("family", rec.FamilyID.String()),
			slog.Int("revoked", len(revoked)))
	}
	s.blacklistRecords(ctx, revoked...)
}

func (s *TokenService) blacklistRecords(ctx context.Context, recs ...RefreshRecord) {
	now := s.now()
	for _, rec := range recs {
		if err := s.blacklist.Add(ctx, rec.JTI, rec.ExpiresAt.Sub(now)); err != nil {
			s.logger.Warn("token blacklist write failed", slog.String("jti", rec.JTI.String()), slog.Any("error", err))
		}
	}
}

func recordFromClaims(claims *Claims) RefreshRecord {
	id, _ := claims.AccountID()
	rec := RefreshRecord{
		JTI:       uuid.MustParse(claims.ID),
		AccountID: id,
		FamilyID:  uuid.MustParse(claims.Family),
	}
	if claims.IssuedAt != nil {
		rec.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		rec.ExpiresAt = claims.ExpiresAt.Time
	}
	return rec
}

var _ rbac.AccessVerifier = (*TokenService)(nil)
