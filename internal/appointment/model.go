package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusBooked    AppointmentStatus = "booked"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// ParseStatus accepts only the three recognized statuses.
func ParseStatus(raw string) (AppointmentStatus, error) {
	switch s := AppointmentStatus(raw); s {
	case StatusBooked, StatusCompleted, StatusCancelled:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
}

// Active reports whether an appointment in this status occupies its slot.
func (s AppointmentStatus) Active() bool {
	return s != StatusCancelled
}

func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date into UTC midnight.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidReference, raw)
	}
	return d, nil
}

// CalendarDate drops the time of day, keeping the calendar day as seen in t's location.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// BookingKey identifies the unit of exclusivity for bookings.
type BookingKey struct {
	DoctorID uuid.UUID
	Date     time.Time
	TimeSlot string
}

func (k BookingKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.DoctorID, k.Date.Format(DateLayout), k.TimeSlot)
}

type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Date      time.Time
	TimeSlot  string
	Status    AppointmentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a Appointment) Key() BookingKey {
	return BookingKey{DoctorID: a.DoctorID, Date: a.Date, TimeSlot: a.TimeSlot}
}

// BookedSlot is the projection the availability resolver needs.
type BookedSlot struct {
	TimeSlot string
	Status   AppointmentStatus
}

type Party struct {
	ID             uuid.UUID
	Name           string
	Email          string
	Specialization *string
}

type AppointmentDetail struct {
	Appointment
	Patient *Party
	Doctor  *Party
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// ListFilter scopes an appointment listing. Nil IDs mean "any".
type ListFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Limit     int
	Offset    int
}
