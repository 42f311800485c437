package colleges

import "time"

// College is an institution accounts may belong to.
type College struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	Address   string    `json:"address"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateRequest is the payload for registering a college.
type CreateRequest struct {
	Name    string `json:"name" validate:"required,max=300"`
	Code    string `json:"code" validate:"required,max=50"`
	Address string `json:"address"`
}
