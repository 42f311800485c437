package users

import (
	"github.com/go-playground/validator/v10"

	"github.com/fynity/fynity/internal/shared"
)

// UpdateRequest is a partial update of the caller's own account. Nil
// pointers and unset Nullable fields are left untouched.
type UpdateRequest struct {
	FirstName        *string           `json:"first_name" validate:"omitempty,max=150"`
	LastName         *string           `json:"last_name" validate:"omitempty,max=150"`
	Mobile           *string           `json:"mobile" validate:"omitempty,max=15"`
	IsCollegeStudent *bool             `json:"is_college_student"`
	College          Nullable[int64]   `json:"college" validate:"omitempty,gt=0"`
	CollegeName      *string           `json:"college_name" validate:"omitempty,max=200"`
	Branch           *string           `json:"branch" validate:"omitempty,max=100"`
	CurrentYear      Nullable[int]     `json:"current_year" validate:"omitempty,min=1,max=10"`
	Semester         Nullable[int]     `json:"semester" validate:"omitempty,min=1,max=12"`
	CGPA             Nullable[float64] `json:"cgpa" validate:"omitempty,min=0,max=10"`
	RollNumber       *string           `json:"roll_number" validate:"omitempty,max=50"`
	Bio              *string           `json:"bio"`
	Avatar           *string           `json:"avatar" validate:"omitempty,max=500"`
}

// touchesAccount reports whether any accounts column changes.
func (r UpdateRequest) touchesAccount() bool {
	return r.FirstName != nil || r.LastName != nil || r.Mobile != nil ||
		r.IsCollegeStudent != nil || r.College.Set || r.CollegeName != nil ||
		r.Branch != nil || r.CurrentYear.Set || r.Semester.Set || r.CGPA.Set ||
		r.RollNumber != nil
}

// touchesProfile reports whether any profiles column changes.
func (r UpdateRequest) touchesProfile() bool {
	return r.Bio != nil || r.Avatar != nil
}

// AccessRequest changes the role or active flag of an account.
type AccessRequest struct {
	Role     *string `json:"role" validate:"omitempty,oneof=free subscriber college_admin super_admin"`
	IsActive *bool   `json:"is_active"`
}

// NewValidator returns the shared validator with the Nullable field types
// registered.
func NewValidator() *validator.Validate {
	v := shared.NewValidator()
	v.RegisterCustomTypeFunc(nullableValue, Nullable[int]{}, Nullable[int64]{}, Nullable[float64]{})
	return v
}
