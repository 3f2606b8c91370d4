package dto

import (
	"time"

	"github.com/ledgerline/banking-support/internal/domain"
)

// UserRegisterRequest payload for new customers.
type UserRegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserLoginRequest payload for login.
type UserLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserResponse is the public view of a customer.
type UserResponse struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Email  string            `json:"email"`
	Status domain.UserStatus `json:"status"`
}

// UserAuthResponse is returned by customer register and login.
type UserAuthResponse struct {
	User UserResponse `json:"user"`
	Auth AuthResponse `json:"auth"`
}

// SessionResponse describes whoever the bearer token belongs to.
type SessionResponse struct {
	SubjectType domain.SubjectType `json:"subject_type"`
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Email       string             `json:"email"`
	Role        *domain.StaffRole  `json:"role,omitempty"`
}

// NewUserResponse maps a domain user.
func NewUserResponse(user *domain.User) UserResponse {
	return UserResponse{ID: user.ID, Name: user.Name, Email: user.Email, Status: user.Status}
}
