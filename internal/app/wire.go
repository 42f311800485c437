package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/fynity/fynity/internal/auth"
	"github.com/fynity/fynity/internal/colleges"
	"github.com/fynity/fynity/internal/observability"
	"github.com/fynity/fynity/internal/rbac"
	"github.com/fynity/fynity/internal/shared"
	"github.com/fynity/fynity/internal/users"
	"github.com/fynity/fynity/jobs"
)

// Services holds the wired domain services shared by the API and the worker.
type Services struct {
	Tokens   *auth.TokenService
	Auth     *auth.Service
	Users    *users.Service
	Colleges *colleges.Service
}

// NewServices wires the Postgres-backed services. redisClient may be nil, in
// which case revoked refresh tokens are only rejected through the registry
// lookup. Access tokens are never blacklisted; the API router re-checks the
// account on every authenticated request instead.
func NewServices(cfg *Config, logger *slog.Logger, pool *pgxpool.Pool, redisClient *redis.Client, metrics *observability.Metrics) (*Services, error) {
	hasher, err := auth.NewPasswordHasher(cfg.PasswordHasher, cfg.BcryptCost, auth.Argon2Params{})
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:     []byte(cfg.JWTSecret),
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}, auth.NewPGRegistry(pool), auth.NewBlacklist(redisClient), logger)
	if err != nil {
		return nil, fmt.Errorf("token service: %w", err)
	}

	auditLogger := shared.NewAuditLogger(pool)
	accounts := users.NewRepository(pool)
	authService, err := auth.NewService(accounts, hasher, tokens, auditLogger, metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}
	usersService := users.NewService(accounts, tokens, auditLogger, logger)
	collegesService := colleges.NewService(colleges.NewRepository(pool), usersService, auditLogger, logger)

	return &Services{
		Tokens:   tokens,
		Auth:     authService,
		Users:    usersService,
		Colleges: collegesService,
	}, nil
}

// NewAPIRouter mounts every HTTP surface on top of the wired services.
func NewAPIRouter(cfg *Config, logger *slog.Logger, svc *Services, inspector *asynq.Inspector, metrics *observability.Metrics) http.Handler {
	mw := rbac.Middleware{Verifier: svc.Tokens, Accounts: svc.Auth, Logger: logger}
	return NewRouter(RouterParams{
		Logger:          logger,
		Config:          cfg,
		AuthHandler:     auth.NewHandler(logger, svc.Auth, mw, LoginLimiter(cfg.LoginRateLimit)),
		UsersHandler:    users.NewHandler(logger, svc.Users, mw),
		CollegesHandler: colleges.NewHandler(logger, svc.Colleges, mw),
		JobHandler:      jobs.NewHandler(inspector, logger),
		Metrics:         metrics,
	})
}
