package policy

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/vetbook/libs/auth"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/model"
)

func TestInsideLeadTime(t *testing.T) {
	r := DefaultRules()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	if !r.InsideLeadTime(now, now.Add(23*time.Hour+59*time.Minute)) {
		t.Fatal("23h59m ahead is inside the lead time")
	}
	if r.InsideLeadTime(now, now.Add(24*time.Hour)) {
		t.Fatal("exactly 24h ahead is outside the lead time")
	}
	if !r.InsideLeadTime(now, now.Add(-time.Hour)) {
		t.Fatal("past starts are inside the lead time")
	}
}

func TestPermissions(t *testing.T) {
	appt := model.Appointment{OwnerID: "owner", ProfessionalID: "pro"}
	owner := auth.Actor{ID: "owner", Role: "client"}
	stranger := auth.Actor{ID: "other", Role: "client"}
	pro := auth.Actor{ID: "pro", Role: "veterinarian"}
	otherPro := auth.Actor{ID: "pro2", Role: "groomer"}
	desk := auth.Actor{ID: "desk", Role: "receptionist"}
	ownerIDAsVet := auth.Actor{ID: "owner", Role: "veterinarian"}

	cases := []struct {
		name               string
		actor              auth.Actor
		view, resched, can bool
	}{
		{"owner", owner, true, true, true},
		{"stranger", stranger, false, false, false},
		{"assigned professional", pro, true, false, true},
		{"other professional", otherPro, false, false, false},
		{"staff", desk, true, true, true},
		{"id match without client role", ownerIDAsVet, false, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanView(tc.actor, appt); got != tc.view {
				t.Fatalf("CanView = %v", got)
			}
			if got := CanReschedule(tc.actor, appt); got != tc.resched {
				t.Fatalf("CanReschedule = %v", got)
			}
			if got := CanCancel(tc.actor, appt); got != tc.can {
				t.Fatalf("CanCancel = %v", got)
			}
		})
	}
}

func TestCanBookFor(t *testing.T) {
	pet := model.Pet{OwnerID: "owner"}
	if !CanBookFor(auth.Actor{ID: "owner", Role: "client"}, pet) {
		t.Fatal("owner may book their own pet")
	}
	if CanBookFor(auth.Actor{ID: "other", Role: "client"}, pet) {
		t.Fatal("clients may not book other owners' pets")
	}
	if !CanBookFor(auth.Actor{ID: "desk", Role: "admin"}, pet) {
		t.Fatal("staff may book for any pet")
	}
	if CanBookFor(auth.Actor{ID: "x", Role: "janitor"}, pet) {
		t.Fatal("unknown roles may not book")
	}
}
