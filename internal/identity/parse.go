package identity

import (
	"net/mail"
	"strconv"
	"strings"

	"typingschool/identity/internal/auth"
)

const (
	minPasswordLength = 8
	maxNameLength     = 120
	minGrade          = 1
	maxGrade          = 12
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateUserRequest is the raw provisioning payload.
type CreateUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Password string `json:"password"`
	Grade    *int   `json:"grade,omitempty"`
}

// NewUser is a validated CreateUserRequest.
type NewUser struct {
	Email    string
	Name     string
	Role     auth.Role
	Password string
	Grade    *int
}

func ParseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid("invalid_user_id")
	}
	return id, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ParseLoginRequest(req LoginRequest) (LoginRequest, error) {
	req.Email = NormalizeEmail(req.Email)
	if req.Email == "" || req.Password == "" {
		return LoginRequest{}, invalid("missing_credentials")
	}
	return req, nil
}

func ParseCreateUserRequest(req CreateUserRequest) (NewUser, error) {
	email := NormalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	if email == "" || name == "" || req.Role == "" || req.Password == "" {
		return NewUser{}, invalid("missing_fields")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return NewUser{}, invalid("invalid_email")
	}
	if len(name) > maxNameLength {
		return NewUser{}, invalid("invalid_name")
	}
	role, ok := auth.ParseRole(req.Role)
	if !ok {
		return NewUser{}, invalid("invalid_role")
	}
	if len(req.Password) < minPasswordLength {
		return NewUser{}, invalid("password_too_short")
	}
	if req.Grade != nil {
		if role != auth.RoleStudent {
			return NewUser{}, invalid("grade_student_only")
		}
		if *req.Grade < minGrade || *req.Grade > maxGrade {
			return NewUser{}, invalid("invalid_grade")
		}
	}
	return NewUser{
		Email:    email,
		Name:     name,
		Role:     role,
		Password: req.Password,
		Grade:    req.Grade,
	}, nil
}
