// Package policy holds the time-relative and role-based rules of the booking lifecycle.
package policy

import (
	"time"

	"github.com/md-rashed-zaman/vetbook/libs/auth"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/model"
)

const DefaultLeadTime = 24 * time.Hour

type Rules struct {
	// LeadTime is how long before an appointment's start the restricted
	// cancel and reschedule window opens.
	LeadTime time.Duration
}

func DefaultRules() Rules {
	return Rules{LeadTime: DefaultLeadTime}
}

// InsideLeadTime reports whether start is less than LeadTime away from now.
func (r Rules) InsideLeadTime(now, start time.Time) bool {
	return start.Sub(now) < r.LeadTime
}

func role(a auth.Actor) model.Role {
	r, _ := model.ParseRole(a.Role)
	return r
}

func IsStaff(a auth.Actor) bool {
	return role(a).IsStaff()
}

// IsOwningClient reports whether a is the client who owns the appointment's pet.
func IsOwningClient(a auth.Actor, appt model.Appointment) bool {
	return role(a) == model.RoleClient && a.ID == appt.OwnerID
}

func IsAssignedProfessional(a auth.Actor, appt model.Appointment) bool {
	r := role(a)
	return (r == model.RoleVeterinarian || r == model.RoleGroomer) && a.ID == appt.ProfessionalID
}

func CanView(a auth.Actor, appt model.Appointment) bool {
	return IsStaff(a) || IsOwningClient(a, appt) || IsAssignedProfessional(a, appt)
}

func CanReschedule(a auth.Actor, appt model.Appointment) bool {
	return IsStaff(a) || IsOwningClient(a, appt)
}

func CanCancel(a auth.Actor, appt model.Appointment) bool {
	return CanView(a, appt)
}

// CanBookFor reports whether a may start a booking for pet.
func CanBookFor(a auth.Actor, pet model.Pet) bool {
	switch role(a) {
	case model.RoleClient:
		return a.ID == pet.OwnerID
	case "":
		return false
	default:
		return true
	}
}
