package colleges

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fynity/fynity/internal/platform/db"
	"github.com/fynity/fynity/internal/shared"
)

// ErrDuplicateCode is returned when the college code is already used.
var ErrDuplicateCode = fmt.Errorf("colleges: duplicate code: %w", shared.ErrDuplicate)

// Repository persists colleges.
type Repository interface {
	ListActive(ctx context.Context) ([]College, error)
	Get(ctx context.Context, id int64) (College, error)
	Create(ctx context.Context, req CreateRequest) (College, error)
}

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const collegeColumns = `id, name, code, address, is_active, created_at`

// ListActive returns active colleges ordered by name.
func (r *PGRepository) ListActive(ctx context.Context) ([]College, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+collegeColumns+` FROM colleges WHERE is_active ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("colleges: list: %w", err)
	}
	defer rows.Close()
	var out []College
	for rows.Next() {
		c, err := scanCollege(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get loads a college by id.
func (r *PGRepository) Get(ctx context.Context, id int64) (College, error) {
	c, err := scanCollege(r.pool.QueryRow(ctx, `SELECT `+collegeColumns+` FROM colleges WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return College{}, shared.ErrNotFound
	}
	if err != nil {
		return College{}, fmt.Errorf("colleges: get: %w", err)
	}
	return c, nil
}

// Create inserts a new active college.
func (r *PGRepository) Create(ctx context.Context, req CreateRequest) (College, error) {
	c, err := scanCollege(r.pool.QueryRow(ctx, `INSERT INTO colleges (name, code, address) VALUES ($1, $2, $3)
RETURNING `+collegeColumns, req.Name, req.Code, req.Address))
	if err != nil {
		if constraint, ok := db.ConstraintViolation(err, db.UniqueViolation); ok && constraint == "colleges_code_key" {
			return College{}, ErrDuplicateCode
		}
		return College{}, fmt.Errorf("colleges: create: %w", err)
	}
	return c, nil
}

func scanCollege(row pgx.Row) (College, error) {
	var c College
	err := row.Scan(&c.ID, &c.Name, &c.Code, &c.Address, &c.IsActive, &c.CreatedAt)
	return c, err
}

var _ Repository = (*PGRepository)(nil)
