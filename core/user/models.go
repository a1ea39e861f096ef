package user

import (
	"net/mail"
	"strings"
	"time"

	"github.com/trezcool/cohort/core"
)

// Roles
const (
	RoleAdmin   = "admin"
	RoleMentor  = "mentor"
	RoleStudent = "student"
)

var AllRoles = []string{RoleAdmin, RoleMentor, RoleStudent}

func IsValidRole(role string) bool {
	for _, r := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

type User struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	IsApproved bool      `json:"is_approved"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"` // UTC
}

func (u User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u User) IsMentor() bool  { return u.Role == RoleMentor }
func (u User) IsStudent() bool { return u.Role == RoleStudent }

// IsEligibleStudent reports whether u may be part of a task audience.
func (u User) IsEligibleStudent() bool {
	return u.IsStudent() && u.IsApproved && u.IsActive
}

// FullName falls back to the username when no name was given.
func (u User) FullName() string {
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	return u.Username
}

func (u User) Address() mail.Address {
	return mail.Address{Name: u.FullName(), Address: u.Email}
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name       string `json:"name" validate:"required,notblank"`
	Username   string `json:"username" validate:"required,min=3,alphanum"`
	Email      string `json:"email" validate:"required,email"`
	Role       string `json:"role" validate:"required,userrole"`
	IsApproved bool   `json:"is_approved"`
}

func (nu *NewUser) Clean() {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
}

func (nu *NewUser) Validate() error {
	nu.Clean()
	return core.Validate.Struct(nu)
}

type GetFilter struct {
	ID       string
	Username string
	Email    string
}

type QueryFilter struct {
	IDs        []string
	Roles      []string
	IsApproved *bool
	IsActive   *bool
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf == nil || (qf.IDs == nil && qf.Roles == nil && qf.IsApproved == nil && qf.IsActive == nil)
}

// Match applies the filter to a single user (AND of every set field).
func (qf *QueryFilter) Match(u User) bool {
	if qf.IsEmpty() {
		return true
	}
	if qf.IDs != nil && !contains(qf.IDs, u.ID) {
		return false
	}
	if qf.Roles != nil && !contains(qf.Roles, u.Role) {
		return false
	}
	if qf.IsApproved != nil && u.IsApproved != *qf.IsApproved {
		return false
	}
	if qf.IsActive != nil && u.IsActive != *qf.IsActive {
		return false
	}
	return true
}

func contains(items []string, s string) bool {
	for _, it := range items {
		if it == s {
			return true
		}
	}
	return false
}
