// Package model defines domain entities for the application.
package model

import "time"

// User is a local account. Accounts created through the external identity
// provider carry ExternalID and have no password.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	ExternalID   *string    `json:"external_id,omitempty"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	PasswordHash *string    `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
}

// HasExternalID reports whether the user is linked to the given external identity.
func (u *User) HasExternalID(externalID string) bool {
	return u.ExternalID != nil && *u.ExternalID == externalID
}
