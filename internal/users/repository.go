package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fynity/fynity/internal/platform/db"
	"github.com/fynity/fynity/internal/rbac"
	"github.com/fynity/fynity/internal/shared"
)

// ErrUnknownCollege is returned when an update references a missing college.
var ErrUnknownCollege = errors.New("users: unknown college")

// DuplicateError reports which unique field collided.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string { return "users: duplicate " + e.Field }

func (e *DuplicateError) Unwrap() error { return shared.ErrDuplicate }

// Repository is the credential store.
type Repository interface {
	Create(ctx context.Context, in NewAccount) (Account, error)
	Taken(ctx context.Context, email, username string) (emailTaken, usernameTaken bool, err error)
	FindByEmail(ctx context.Context, email string) (Account, error)
	FindByID(ctx context.Context, id int64) (Account, error)
	Update(ctx context.Context, id int64, req UpdateRequest) (Account, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
	SetAccess(ctx context.Context, id int64, role *rbac.Role, active *bool) (Account, error)
	ListByCollege(ctx context.Context, collegeID int64) ([]Account, error)
}

// dbtx is satisfied by both the pool and a transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const selectAccountSQL = `SELECT a.id, a.email, a.username, a.password_hash, a.first_name, a.last_name, a.mobile,
	a.role, a.is_active, a.is_college_student, a.college_id, c.name, c.code, a.college_name, a.branch,
	a.current_year, a.semester, a.cgpa::float8, a.roll_number,
	COALESCE(p.avatar, ''), COALESCE(p.bio, ''), COALESCE(p.total_points, 0), COALESCE(p.total_stars, 0),
	COALESCE(p.streak_days, 0), p.last_active, a.created_at, a.updated_at
FROM accounts a
LEFT JOIN colleges c ON c.id = a.college_id
LEFT JOIN profiles p ON p.account_id = a.id`

// Create inserts the account and its empty profile in one transaction.
func (r *PGRepository) Create(ctx context.Context, in NewAccount) (Account, error) {
	var out Account
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx, `INSERT INTO accounts (email, username, password_hash, first_name, last_name, mobile,
	role, is_active, is_college_student, college_name, branch, current_year, semester, roll_number)
VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, $9, $10, $11, $12, $13)
RETURNING id`,
			in.Email, in.Username, in.PasswordHash, in.FirstName, in.LastName, in.Mobile,
			string(rbac.RoleFree), in.IsCollegeStudent, in.CollegeName, in.Branch, in.CurrentYear, in.Semester, in.RollNumber,
		).Scan(&id)
		if err != nil {
			return mapWriteError(err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO profiles (account_id) VALUES ($1)`, id); err != nil {
			return fmt.Errorf("users: create profile: %w", err)
		}
		out, err = findOne(ctx, tx, "a.id = $1", id)
		return err
	})
	return out, err
}

// Taken reports which of email and username already belong to an account.
func (r *PGRepository) Taken(ctx context.Context, email, username string) (bool, bool, error) {
	var emailTaken, usernameTaken bool
	err := r.pool.QueryRow(ctx, `SELECT
	EXISTS (SELECT 1 FROM accounts WHERE email = $1),
	EXISTS (SELECT 1 FROM accounts WHERE username = $2)`, email, username).Scan(&emailTaken, &usernameTaken)
	if err != nil {
		return false, false, fmt.Errorf("users: uniqueness check: %w", err)
	}
	return emailTaken, usernameTaken, nil
}

// FindByEmail loads an account by normalised email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (Account, error) {
	return findOne(ctx, r.pool, "a.email = $1", email)
}

// FindByID loads an account by id.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (Account, error) {
	return findOne(ctx, r.pool, "a.id = $1", id)
}

// Update applies req to the account and its profile atomically.
func (r *PGRepository) Update(ctx context.Context, id int64, req UpdateRequest) (Account, error) {
	var out Account
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if req.touchesAccount() {
			set, args := accountAssignments(req)
			args = append(args, id)
			tag, err := tx.Exec(ctx, `UPDATE accounts SET `+strings.Join(set, ", ")+`, updated_at = NOW() WHERE id = $`+strconv.Itoa(len(args)), args...)
			if err != nil {
				return mapWriteError(err)
			}
			if tag.RowsAffected() == 0 {
				return shared.ErrNotFound
			}
		}
		if req.touchesProfile() {
			_, err := tx.Exec(ctx, `INSERT INTO profiles (account_id, bio, avatar) VALUES ($1, COALESCE($2, ''), COALESCE($3, ''))
ON CONFLICT (account_id) DO UPDATE SET
	bio = COALESCE($2, profiles.bio),
	avatar = COALESCE($3, profiles.avatar),
	updated_at = NOW()`, id, req.Bio, req.Avatar)
			if err != nil {
				return mapWriteError(err)
			}
		}
		var err error
		out, err = findOne(ctx, tx, "a.id = $1", id)
		return err
	})
	return out, err
}

func accountAssignments(req UpdateRequest) ([]string, []any) {
	var set []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, column+" = $"+strconv.Itoa(len(args)))
	}
	if req.FirstName != nil {
		add("first_name", *req.FirstName)
	}
	if req.LastName != nil {
		add("last_name", *req.LastName)
	}
	if req.Mobile != nil {
		add("mobile", *req.Mobile)
	}
	if req.IsCollegeStudent != nil {
		add("is_college_student", *req.IsCollegeStudent)
	}
	if req.College.Set {
		add("college_id", req.College.Ptr())
	}
	if req.CollegeName != nil {
		add("college_name", *req.CollegeName)
	}
	if req.Branch != nil {
		add("branch", *req.Branch)
	}
	if req.CurrentYear.Set {
		add("current_year", req.CurrentYear.Ptr())
	}
	if req.Semester.Set {
		add("semester", req.Semester.Ptr())
	}
	if req.CGPA.Set {
		add("cgpa", req.CGPA.Ptr())
	}
	if req.RollNumber != nil {
		add("roll_number", *req.RollNumber)
	}
	return set, args
}

// UpdatePassword stores a new password digest.
func (r *PGRepository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("users: update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetAccess updates role and/or active flag.
func (r *PGRepository) SetAccess(ctx context.Context, id int64, role *rbac.Role, active *bool) (Account, error) {
	var roleArg *string
	if role != nil {
		v := string(*role)
		roleArg = &v
	}
	var out Account
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE accounts SET
	role = COALESCE($2, role),
	is_active = COALESCE($3, is_active),
	updated_at = NOW()
WHERE id = $1`, id, roleArg, active)
		if err != nil {
			return fmt.Errorf("users: set access: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		out, err = findOne(ctx, tx, "a.id = $1", id)
		return err
	})
	return out, err
}

// ListByCollege returns the accounts attached to a college, newest first.
func (r *PGRepository) ListByCollege(ctx context.Context, collegeID int64) ([]Account, error) {
	rows, err := r.pool.Query(ctx, selectAccountSQL+` WHERE a.college_id = $1 ORDER BY a.created_at DESC`, collegeID)
	if err != nil {
		return nil, fmt.Errorf("users: list by college: %w", err)
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

func findOne(ctx context.Context, q dbtx, where string, arg any) (Account, error) {
	acc, err := scanAccount(q.QueryRow(ctx, selectAccountSQL+" WHERE "+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, shared.ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("users: load account: %w", err)
	}
	return acc, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		a           Account
		role        string
		collegeName *string
		collegeCode *string
	)
	err := row.Scan(
		&a.ID, &a.Email, &a.Username, &a.PasswordHash, &a.FirstName, &a.LastName, &a.Mobile,
		&role, &a.IsActive, &a.IsCollegeStudent, &a.CollegeID, &collegeName, &collegeCode, &a.CollegeName, &a.Branch,
		&a.CurrentYear, &a.Semester, &a.CGPA, &a.RollNumber,
		&a.Profile.Avatar, &a.Profile.Bio, &a.Profile.TotalPoints, &a.Profile.TotalStars,
		&a.Profile.StreakDays, &a.Profile.LastActive, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return Account{}, err
	}
	a.Role = rbac.Role(role)
	a.Profile.AccountID = a.ID
	if a.CollegeID != nil && collegeName != nil && collegeCode != nil {
		a.College = &CollegeDetail{ID: *a.CollegeID, Name: *collegeName, Code: *collegeCode}
	}
	return a, nil
}

func mapWriteError(err error) error {
	if constraint, ok := db.ConstraintViolation(err, db.UniqueViolation); ok {
		switch constraint {
		case "accounts_email_key":
			return &DuplicateError{Field: "email"}
		case "accounts_username_key":
			return &DuplicateError{Field: "username"}
		}
		return fmt.Errorf("users: %w", shared.ErrDuplicate)
	}
	if constraint, ok := db.ConstraintViolation(err, db.ForeignKeyViolation); ok && constraint == "accounts_college_id_fkey" {
		return ErrUnknownCollege
	}
	return fmt.Errorf("users: write account: %w", err)
}

var _ Repository = (*PGRepository)(nil)
