package dto

import "github.com/ledgerline/banking-support/internal/domain"

// StaffLoginRequest payload.
type StaffLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// StaffResponse is the public view of a staff member.
type StaffResponse struct {
	ID    string           `json:"id"`
	Name  string           `json:"name"`
	Email string           `json:"email"`
	Role  domain.StaffRole `json:"role"`
}

// StaffAuthResponse is returned by staff login.
type StaffAuthResponse struct {
	Staff StaffResponse `json:"staff"`
	Auth  AuthResponse  `json:"auth"`
}

// NewStaffResponse maps a domain staff member.
func NewStaffResponse(staff *domain.StaffMember) StaffResponse {
	return StaffResponse{ID: staff.ID, Name: staff.Name, Email: staff.Email, Role: staff.Role}
}
