package appointment

import (
	"fmt"

	"github.com/hackgods/clinic-booking/internal/auth"
)

// transitions lists every allowed status change. Anything absent is rejected.
var transitions = map[AppointmentStatus]map[AppointmentStatus]bool{
	StatusBooked: {
		StatusCompleted: true,
		StatusCancelled: true,
	},
}

// CheckTransition decides whether caller may move appt to target.
// target must already be a recognized status.
func CheckTransition(caller auth.Identity, appt *Appointment, target AppointmentStatus) error {
	if appt.Status.Terminal() {
		return fmt.Errorf("%w: appointment is %s", ErrInvalidTransition, appt.Status)
	}

	switch caller.Role {
	case auth.RoleDoctor:
		if caller.ID != appt.DoctorID {
			return fmt.Errorf("%w: appointment belongs to another doctor", ErrForbidden)
		}
	case auth.RolePatient, auth.RoleAdmin:
		return fmt.Errorf("%w: only the appointment's doctor can change its status", ErrForbidden)
	default:
		return ErrUnauthorized
	}

	if !transitions[appt.Status][target] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, target)
	}
	return nil
}
