package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/account"
	"github.com/hackgods/clinic-booking/internal/appointment"
)

type CreateAppointmentRequest struct {
	DoctorID string `json:"doctor_id" validate:"required,uuid"`
	Date     string `json:"date" validate:"required"`
	TimeSlot string `json:"time_slot" validate:"required,timeslot"`
}

// UpdateStatusRequest is not validated here; the engine owns status parsing.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type PartyResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email,omitempty"`
	Specialization *string   `json:"specialization,omitempty"`
}

type AppointmentResponse struct {
	ID        uuid.UUID      `json:"id"`
	PatientID uuid.UUID      `json:"patient_id"`
	DoctorID  uuid.UUID      `json:"doctor_id"`
	Date      string         `json:"date"`
	TimeSlot  string         `json:"time_slot"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Patient   *PartyResponse `json:"patient,omitempty"`
	Doctor    *PartyResponse `json:"doctor,omitempty"`
}

type ListAppointmentsResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

type SlotsResponse struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     string    `json:"date"`
	Slots    []string  `json:"slots"`
}

type DoctorResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Specialization *string   `json:"specialization,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		Date:      a.Date.Format(appointment.DateLayout),
		TimeSlot:  a.TimeSlot,
		Status:    string(a.Status),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toDetailResponse(d appointment.AppointmentDetail) AppointmentResponse {
	resp := toAppointmentResponse(d.Appointment)
	resp.Patient = toPartyResponse(d.Patient)
	resp.Doctor = toPartyResponse(d.Doctor)
	return resp
}

func toPartyResponse(p *appointment.Party) *PartyResponse {
	if p == nil {
		return nil
	}
	return &PartyResponse{ID: p.ID, Name: p.Name, Email: p.Email, Specialization: p.Specialization}
}

func toDoctorResponse(a account.Account) DoctorResponse {
	return DoctorResponse{ID: a.ID, Name: a.Name, Specialization: a.Specialization}
}
