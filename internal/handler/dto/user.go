package dto

import (
	"time"

	"github.com/invoicely/invoicely/internal/model"
)

// SyncUserRequest carries an identity provider's view of a user.
type SyncUserRequest struct {
	ExternalID string `json:"external_id"`
	Email      string `json:"email,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	ExternalID *string    `json:"external_id"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at"`
}

// UserEnvelope wraps a single user.
type UserEnvelope struct {
	Success bool          `json:"success"`
	User    *UserResponse `json:"user"`
}

// ToUserResponse converts a User model to UserResponse DTO.
func ToUserResponse(user *model.User) *UserResponse {
	return &UserResponse{
		ID:         user.ID,
		Email:      user.Email,
		ExternalID: user.ExternalID,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
	}
}
