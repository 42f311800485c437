package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fynity/fynity/internal/platform/db"
	"github.com/fynity/fynity/internal/shared"
)

// Registry persists issued refresh tokens and their revocation state.
type Registry interface {
	Record(ctx context.Context, rec RefreshRecord) error
	Lookup(ctx context.Context, jti uuid.UUID) (RefreshRecord, error)
	// Revoke marks rec revoked, inserting it when unknown. Revoking twice
	// keeps the first revocation time.
	Revoke(ctx context.Context, rec RefreshRecord, at time.Time) error
	// Rotate revokes oldJTI and records next atomically. It fails with
	// ErrRevoked when oldJTI was already revoked.
	Rotate(ctx context.Context, oldJTI uuid.UUID, next RefreshRecord, at time.Time) error
	RevokeFamily(ctx context.Context, family uuid.UUID, at time.Time) ([]RefreshRecord, error)
	RevokeAccount(ctx context.Context, accountID int64, at time.Time) ([]RefreshRecord, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// PGRegistry stores refresh tokens in the refresh_tokens table.
type PGRegistry struct {
	pool *pgxpool.Pool
}

// NewPGRegistry constructs a Postgres backed registry.
func NewPGRegistry(pool *pgxpool.Pool) *PGRegistry {
	return &PGRegistry{pool: pool}
}

const insertRefreshSQL = `INSERT INTO refresh_tokens (jti, account_id, family_id, issued_at, expires_at)
VALUES ($1, $2, $3, $4, $5)`

// Record stores a freshly issued refresh token.
func (r *PGRegistry) Record(ctx context.Context, rec RefreshRecord) error {
	_, err := r.pool.Exec(ctx, insertRefreshSQL, rec.JTI, rec.AccountID, rec.FamilyID, rec.IssuedAt, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("auth: record refresh token: %w", err)
	}
	return nil
}

// Lookup loads a token by jti.
func (r *PGRegistry) Lookup(ctx context.Context, jti uuid.UUID) (RefreshRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT jti, account_id, family_id, issued_at, expires_at, revoked_at
FROM refresh_tokens WHERE jti = $1`, jti)
	rec, err := scanRefresh(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return RefreshRecord{}, shared.ErrNotFound
	}
	if err != nil {
		return RefreshRecord{}, fmt.Errorf("auth: lookup refresh token: %w", err)
	}
	return rec, nil
}

// Revoke upserts rec as revoked.
func (r *PGRegistry) Revoke(ctx context.Context, rec RefreshRecord, at time.Time) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO refresh_tokens (jti, account_id, family_id, issued_at, expires_at, revoked_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (jti) DO UPDATE SET revoked_at = COALESCE(refresh_tokens.revoked_at, EXCLUDED.revoked_at)`,
		rec.JTI, rec.AccountID, rec.FamilyID, rec.IssuedAt, rec.ExpiresAt, at)
	if err != nil {
		return fmt.Errorf("auth: revoke refresh token: %w", err)
	}
	return nil
}

// Rotate revokes the presented token and records its successor in one
// transaction. Only one of several concurrent rotations can succeed.
func (r *PGRegistry) Rotate(ctx context.Context, oldJTI uuid.UUID, next RefreshRecord, at time.Time) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = $2 WHERE jti = $1 AND revoked_at IS NULL`, oldJTI, at)
		if err != nil {
			return fmt.Errorf("auth: rotate refresh token: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrRevoked
		}
		if _, err := tx.Exec(ctx, insertRefreshSQL, next.JTI, next.AccountID, next.FamilyID, next.IssuedAt, next.ExpiresAt); err != nil {
			return fmt.Errorf("auth: record rotated token: %w", err)
		}
		return nil
	})
}

// RevokeFamily revokes every live token of a rotation chain and returns them.
func (r *PGRegistry) RevokeFamily(ctx context.Context, family uuid.UUID, at time.Time) ([]RefreshRecord, error) {
	return r.revokeWhere(ctx, `family_id = $1`, family, at)
}

// RevokeAccount revokes every live token of an account and returns them.
func (r *PGRegistry) RevokeAccount(ctx context.Context, accountID int64, at time.Time) ([]RefreshRecord, error) {
	return r.revokeWhere(ctx, `account_id = $1`, accountID, at)
}

func (r *PGRegistry) revokeWhere(ctx context.Context, cond string, arg any, at time.Time) ([]RefreshRecord, error) {
	rows, err := r.pool.Query(ctx, `UPDATE refresh_tokens SET revoked_at = $2
WHERE `+cond+` AND revoked_at IS NULL
RETURNING jti, account_id, family_id, issued_at, expires_at, revoked_at`, arg, at)
	if err != nil {
		return nil, fmt.Errorf("auth: bulk revoke: %w", err)
	}
	defer rows.Close()
	var out []RefreshRecord
	for rows.Next() {
		rec, err := scanRefresh(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteExpired prunes tokens that expired before the cutoff.
func (r *PGRegistry) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("auth: delete expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRefresh(row pgx.Row) (RefreshRecord, error) {
	var rec RefreshRecord
	err := row.Scan(&rec.JTI, &rec.AccountID, &rec.FamilyID, &rec.IssuedAt, &rec.ExpiresAt, &rec.RevokedAt)
	return rec, err
}

var _ Registry = (*PGRegistry)(nil)
