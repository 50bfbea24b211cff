package model

import (
	"time"

	"typingschool/identity/internal/auth"
)

type User struct {
	ID           int64
	Email        string
	Name         string
	Role         auth.Role
	PasswordHash string
	Grade        *int
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session returns the token claim for u.
func (u User) Session() auth.Session {
	return auth.Session{
		UserID: u.ID,
		Role:   u.Role,
		Name:   u.Name,
		Email:  u.Email,
	}
}
