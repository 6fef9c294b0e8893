package appointment

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/hackgods/clinic-booking/internal/auth"
)

func TestCheckTransition(t *testing.T) {
	doctorID := uuid.New()
	owner := auth.Identity{ID: doctorID, Role: auth.RoleDoctor}
	otherDoctor := auth.Identity{ID: uuid.New(), Role: auth.RoleDoctor}
	patient := auth.Identity{ID: uuid.New(), Role: auth.RolePatient}
	admin := auth.Identity{ID: uuid.New(), Role: auth.RoleAdmin}

	appt := func(status AppointmentStatus) *Appointment {
		return &Appointment{ID: uuid.New(), DoctorID: doctorID, Status: status}
	}

	tests := []struct {
		name   string
		caller auth.Identity
		from   AppointmentStatus
		to     AppointmentStatus
		want   error
	}{
		{"owner completes", owner, StatusBooked, StatusCompleted, nil},
		{"owner cancels", owner, StatusBooked, StatusCancelled, nil},
		{"owner rebooks booked", owner, StatusBooked, StatusBooked, ErrInvalidTransition},
		{"other doctor", otherDoctor, StatusBooked, StatusCompleted, ErrForbidden},
		{"patient", patient, StatusBooked, StatusCancelled, ErrForbidden},
		{"admin", admin, StatusBooked, StatusCancelled, ErrForbidden},
		{"completed is terminal for owner", owner, StatusCompleted, StatusCancelled, ErrInvalidTransition},
		{"cancelled is terminal for owner", owner, StatusCancelled, StatusBooked, ErrInvalidTransition},
		{"terminal wins over ownership", otherDoctor, StatusCompleted, StatusCancelled, ErrInvalidTransition},
		{"terminal for patient too", patient, StatusCancelled, StatusCompleted, ErrInvalidTransition},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckTransition(tc.caller, appt(tc.from), tc.to)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
