package users

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/fynity/fynity/internal/rbac"
)

// Account is a registered user. PasswordHash never leaves the service layer.
type Account struct {
	ID               int64
	Email            string
	Username         string
	PasswordHash     string
	FirstName        string
	LastName         string
	Mobile           string
	Role             rbac.Role
	IsActive         bool
	IsCollegeStudent bool
	CollegeID        *int64
	College          *CollegeDetail
	CollegeName      string
	Branch           string
	CurrentYear      *int
	Semester         *int
	CGPA             *float64
	RollNumber       string
	Profile          Profile
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SubjectID identifies the account for ownership checks.
func (a Account) SubjectID() int64 { return a.ID }

// Profile holds the gamification counters and public bio of an account.
type Profile struct {
	AccountID   int64
	Avatar      string
	Bio         string
	TotalPoints int
	TotalStars  int
	StreakDays  int
	LastActive  *time.Time
}

// OwnerID returns the owning account.
func (p Profile) OwnerID() int64 { return p.AccountID }

// CollegeDetail is the short form of the referenced college.
type CollegeDetail struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// NewAccount carries the fields accepted at registration.
type NewAccount struct {
	Email            string
	Username         string
	PasswordHash     string
	FirstName        string
	LastName         string
	Mobile           string
	IsCollegeStudent bool
	CollegeName      string
	Branch           string
	CurrentYear      *int
	Semester         *int
	RollNumber       string
}

// ProfileView is the serialised profile.
type ProfileView struct {
	Avatar      string  `json:"avatar"`
	Bio         string  `json:"bio"`
	TotalPoints int     `json:"total_points"`
	TotalStars  int     `json:"total_stars"`
	StreakDays  int     `json:"streak_days"`
	LastActive  *string `json:"last_active"`
}

// View is the public representation of an account.
type View struct {
	ID               int64          `json:"id"`
	Email            string         `json:"email"`
	Username         string         `json:"username"`
	FirstName        string         `json:"first_name"`
	LastName         string         `json:"last_name"`
	Mobile           string         `json:"mobile"`
	Role             rbac.Role      `json:"role"`
	IsCollegeStudent bool           `json:"is_college_student"`
	College          *int64         `json:"college"`
	CollegeDetail    *CollegeDetail `json:"college_detail"`
	CollegeName      string         `json:"college_name"`
	Branch           string         `json:"branch"`
	CurrentYear      *int           `json:"current_year"`
	Semester         *int           `json:"semester"`
	CGPA             *string        `json:"cgpa"`
	RollNumber       string         `json:"roll_number"`
	Profile          ProfileView    `json:"profile"`
	CreatedAt        time.Time      `json:"created_at"`
}

// View converts the account into its public representation.
func (a Account) View() View {
	v := View{
		ID:               a.ID,
		Email:            a.Email,
		Username:         a.Username,
		FirstName:        a.FirstName,
		LastName:         a.LastName,
		Mobile:           a.Mobile,
		Role:             a.Role,
		IsCollegeStudent: a.IsCollegeStudent,
		College:          a.CollegeID,
		CollegeDetail:    a.College,
		CollegeName:      a.CollegeName,
		Branch:           a.Branch,
		CurrentYear:      a.CurrentYear,
		Semester:         a.Semester,
		CGPA:             formatCGPA(a.CGPA),
		RollNumber:       a.RollNumber,
		Profile: ProfileView{
			Avatar:      a.Profile.Avatar,
			Bio:         a.Profile.Bio,
			TotalPoints: a.Profile.TotalPoints,
			TotalStars:  a.Profile.TotalStars,
			StreakDays:  a.Profile.StreakDays,
		},
		CreatedAt: a.CreatedAt,
	}
	if a.Profile.LastActive != nil {
		day := a.Profile.LastActive.Format(time.DateOnly)
		v.Profile.LastActive = &day
	}
	return v
}

// Views converts a slice of accounts.
func Views(accounts []Account) []View {
	out := make([]View, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.View())
	}
	return out
}

// formatCGPA renders the two-decimal string form used for decimals.
func formatCGPA(v *float64) *string {
	if v == nil {
		return nil
	}
	s := strconv.FormatFloat(*v, 'f', 2, 64)
	return &s
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeUsername applies NFKC so visually identical usernames collide.
func NormalizeUsername(username string) string {
	return norm.NFKC.String(strings.TrimSpace(username))
}
