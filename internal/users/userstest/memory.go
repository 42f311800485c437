// Package userstest provides an in-memory users.Repository for tests.
package userstest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fynity/fynity/internal/rbac"
	"github.com/fynity/fynity/internal/shared"
	"github.com/fynity/fynity/internal/users"
)

// Repository keeps accounts in memory with the same uniqueness and
// foreign key behaviour as the Postgres store.
type Repository struct {
	mu       sync.Mutex
	seq      int64
	accounts map[int64]users.Account
	colleges map[int64]users.CollegeDetail
	now      func() time.Time
}

// New returns an empty repository.
func New() *Repository {
	return &Repository{
		accounts: make(map[int64]users.Account),
		colleges: make(map[int64]users.CollegeDetail),
		now:      time.Now,
	}
}

// AddCollege registers a college that accounts may reference.
func (r *Repository) AddCollege(c users.CollegeDetail) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.colleges[c.ID] = c
}

// Put stores acc as is, assigning an id when zero.
func (r *Repository) Put(acc users.Account) users.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	if acc.ID == 0 {
		r.seq++
		acc.ID = r.seq
	} else if acc.ID > r.seq {
		r.seq = acc.ID
	}
	acc.Profile.AccountID = acc.ID
	if acc.Role == "" {
		acc.Role = rbac.RoleFree
	}
	r.accounts[acc.ID] = acc
	return acc
}

// Create inserts a new account.
func (r *Repository) Create(_ context.Context, in users.NewAccount) (users.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Email == in.Email {
			return users.Account{}, &users.DuplicateError{Field: "email"}
		}
		if a.Username == in.Username {
			return users.Account{}, &users.DuplicateError{Field: "username"}
		}
	}
	r.seq++
	now := r.now()
	acc := users.Account{
		ID:               r.seq,
		Email:            in.Email,
		Username:         in.Username,
		PasswordHash:     in.PasswordHash,
		FirstName:        in.FirstName,
		LastName:         in.LastName,
		Mobile:           in.Mobile,
		Role:             rbac.RoleFree,
		IsActive:         true,
		IsCollegeStudent: in.IsCollegeStudent,
		CollegeName:      in.CollegeName,
		Branch:           in.Branch,
		CurrentYear:      in.CurrentYear,
		Semester:         in.Semester,
		RollNumber:       in.RollNumber,
		Profile:          users.Profile{AccountID: r.seq},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	r.accounts[acc.ID] = acc
	return acc, nil
}

// Taken reports existing email and username collisions.
func (r *Repository) Taken(_ context.Context, email, username string) (bool, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var e, u bool
	for _, a := range r.accounts {
		e = e || a.Email == email
		u = u || a.Username == username
	}
	return e, u, nil
}

// FindByEmail loads by email.
func (r *Repository) FindByEmail(_ context.Context, email string) (users.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return users.Account{}, shared.ErrNotFound
}

// FindByID loads by id.
func (r *Repository) FindByID(_ context.Context, id int64) (users.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return users.Account{}, shared.ErrNotFound
	}
	return a, nil
}

// Update applies a partial update.
func (r *Repository) Update(_ context.Context, id int64, req users.UpdateRequest) (users.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return users.Account{}, shared.ErrNotFound
	}
	if req.College.Set && req.College.Valid {
		if _, ok := r.colleges[req.College.Value]; !ok {
			return users.Account{}, users.ErrUnknownCollege
		}
	}
	setString(&a.FirstName, req.FirstName)
	setString(&a.LastName, req.LastName)
	setString(&a.Mobile, req.Mobile)
	setString(&a.CollegeName, req.CollegeName)
	setString(&a.Branch, req.Branch)
	setString(&a.RollNumber, req.RollNumber)
	setString(&a.Profile.Bio, req.Bio)
	setString(&a.Profile.Avatar, req.Avatar)
	if req.IsCollegeStudent != nil {
		a.IsCollegeStudent = *req.IsCollegeStudent
	}
	if req.College.Set {
		a.CollegeID = req.College.Ptr()
		a.College = nil
		if a.CollegeID != nil {
			c := r.colleges[*a.CollegeID]
			a.College = &c
		}
	}
	if req.CurrentYear.Set {
		a.CurrentYear = req.CurrentYear.Ptr()
	}
	if req.Semester.Set {
		a.Semester = req.Semester.Ptr()
	}
	if req.CGPA.Set {
		a.CGPA = req.CGPA.Ptr()
	}
	a.UpdatedAt = r.now()
	r.accounts[id] = a
	return a, nil
}

// UpdatePassword replaces the digest.
func (r *Repository) UpdatePassword(_ context.Context, id int64, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return shared.ErrNotFound
	}
	a.PasswordHash = hash
	r.accounts[id] = a
	return nil
}

// SetAccess updates role and active flag.
func (r *Repository) SetAccess(_ context.Context, id int64, role *rbac.Role, active *bool) (users.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return users.Account{}, shared.ErrNotFound
	}
	if role != nil {
		a.Role = *role
	}
	if active != nil {
		a.IsActive = *active
	}
	r.accounts[id] = a
	return a, nil
}

// ListByCollege lists accounts of a college.
func (r *Repository) ListByCollege(_ context.Context, collegeID int64) ([]users.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []users.Account
	for _, a := range r.accounts {
		if a.CollegeID != nil && *a.CollegeID == collegeID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

var _ users.Repository = (*Repository)(nil)
