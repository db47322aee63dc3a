package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleClient       Role = "client"
	RoleVeterinarian Role = "veterinarian"
	RoleGroomer      Role = "groomer"
	RoleReceptionist Role = "receptionist"
	RoleAdmin        Role = "admin"
)

// ParseRole accepts the closed set of roles, case-insensitively.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleClient, RoleVeterinarian, RoleGroomer, RoleReceptionist, RoleAdmin:
		return r, true
	}
	return "", false
}

// IsStaff reports whether the role may act on any appointment.
func (r Role) IsStaff() bool {
	return r == RoleReceptionist || r == RoleAdmin
}

type Category string

const (
	CategoryMedical   Category = "medical"
	CategoryAesthetic Category = "aesthetic"
)

var requiredRoles = map[Category]Role{
	CategoryMedical:   RoleVeterinarian,
	CategoryAesthetic: RoleGroomer,
}

// RequiredRole returns the professional role able to perform services of category c.
func RequiredRole(c Category) (Role, bool) {
	r, ok := requiredRoles[c]
	return r, ok
}

type Service struct {
	ID              string
	Name            string
	DurationMinutes int
	PriceCents      int64
	Currency        string
	Category        Category
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

type Professional struct {
	ID    string
	Name  string
	Email string
	Role  Role
}

type Pet struct {
	ID         string
	Name       string
	OwnerID    string
	OwnerName  string
	OwnerEmail string
}
