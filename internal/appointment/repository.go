package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrStaleStatus is returned by CompareAndSetStatus when the stored status no longer
// matches the expected one.
var ErrStaleStatus = errors.New("appointment status changed concurrently")

// Repository contains all store interactions needed by the service.
type Repository interface {
	// CreateIfAbsent inserts appt unless an active appointment already holds its
	// (doctor, date, slot) key, in which case it returns ErrSlotConflict. The check
	// and the insert are a single atomic step.
	CreateIfAbsent(ctx context.Context, appt Appointment) (*Appointment, error)

	// For availability
	FindByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]BookedSlot, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, filter ListFilter) ([]Appointment, error)

	// CompareAndSetStatus moves id from `from` to `to`. Returns ErrNotFound when the
	// appointment does not exist and ErrStaleStatus when its status is not `from`.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error

	Ping(ctx context.Context) error
}
