package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/account"
	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/notify"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Service struct {
	repo     Repository
	accounts account.Directory
	notifier notify.Notifier
	locker   redisclient.Locker
	cfg      config.Config
	log      *zap.Logger
}

func NewService(repo Repository, accounts account.Directory, notifier notify.Notifier, locker redisclient.Locker, cfg config.Config, log *zap.Logger) *Service {
	if locker == nil {
		locker = redisclient.NopLocker{}
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(log)
	}
	return &Service{
		repo:     repo,
		accounts: accounts,
		notifier: notifier,
		locker:   locker,
		cfg:      cfg,
		log:      log,
	}
}

type BookingRequest struct {
	DoctorID uuid.UUID
	Date     time.Time
	TimeSlot string
}

type Page struct {
	Limit  int
	Offset int
}

// Normalize applies the default page size, caps it and clamps a negative offset.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// ListAvailableSlots returns the grid minus slots held by active bookings of the
// doctor on that date. The answer is advisory; Book re-checks atomically.
func (s *Service) ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error) {
	if doctorID == uuid.Nil || date.IsZero() {
		return nil, fmt.Errorf("%w: doctor_id and date are required", ErrInvalidReference)
	}
	date = CalendarDate(date)

	if _, err := s.resolveAccount(ctx, doctorID, auth.RoleDoctor); err != nil {
		return nil, err
	}

	booked, err := s.repo.FindByDoctorAndDate(ctx, doctorID, date)
	if err != nil {
		return nil, storageError("find bookings", err)
	}

	taken := make(map[string]bool, len(booked))
	for _, b := range booked {
		if b.Status.Active() {
			taken[b.TimeSlot] = true
		}
	}

	available := make([]string, 0, len(Grid()))
	for _, slot := range Grid() {
		if !taken[slot] {
			available = append(available, slot)
		}
	}
	return available, nil
}

// Book creates a booked appointment for the calling patient. Concurrent bookings of
// the same (doctor, date, slot) resolve to one success and ErrSlotConflict for the rest.
func (s *Service) Book(ctx context.Context, caller auth.Identity, req BookingRequest) (*Appointment, error) {
	if !caller.Valid() {
		return nil, ErrUnauthorized
	}
	if caller.Role != auth.RolePatient {
		return nil, fmt.Errorf("%w: only patients can book appointments", ErrForbidden)
	}

	if req.DoctorID == uuid.Nil || req.Date.IsZero() {
		return nil, fmt.Errorf("%w: doctor_id and date are required", ErrInvalidReference)
	}
	if !IsValidSlot(req.TimeSlot) {
		return nil, fmt.Errorf("%w: unknown time slot %q", ErrInvalidReference, req.TimeSlot)
	}

	doctor, err := s.resolveAccount(ctx, req.DoctorID, auth.RoleDoctor)
	if err != nil {
		return nil, err
	}
	patient, err := s.resolveAccount(ctx, caller.ID, auth.RolePatient)
	if err != nil {
		return nil, err
	}

	appt := Appointment{
		PatientID: patient.ID,
		DoctorID:  doctor.ID,
		Date:      CalendarDate(req.Date),
		TimeSlot:  req.TimeSlot,
		Status:    StatusBooked,
	}
	key := appt.Key().String()

	var created *Appointment
	create := func(ctx context.Context) error {
		a, err := s.repo.CreateIfAbsent(ctx, appt)
		if err != nil {
			return err
		}
		created = a
		return nil
	}

	// The lock only narrows the race. Whether or not it is held, the store's
	// conditional insert decides the conflict.
	err = s.locker.WithBookingLock(ctx, key, create)
	switch {
	case errors.Is(err, redisclient.ErrLockUnavailable):
		s.log.Warn("booking lock unavailable, relying on store", zap.String("key", key), zap.Error(err))
		err = create(ctx)
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		s.log.Debug("booking lock contended, relying on store", zap.String("key", key))
		err = create(ctx)
	}
	if err != nil {
		switch {
		case errors.Is(err, ErrSlotConflict):
			return nil, fmt.Errorf("%w: %s", ErrSlotConflict, key)
		default:
			return nil, storageError("create appointment", err)
		}
	}

	s.log.Info("appointment booked",
		zap.String("appointment_id", created.ID.String()),
		zap.String("doctor_id", created.DoctorID.String()),
		zap.String("patient_id", created.PatientID.String()),
		zap.String("date", created.Date.Format(DateLayout)),
		zap.String("time_slot", created.TimeSlot),
	)

	s.logEvent(ctx, created.ID, EventAppointmentBooked, map[string]any{
		"doctor_id":  created.DoctorID.String(),
		"patient_id": created.PatientID.String(),
		"date":       created.Date.Format(DateLayout),
		"time_slot":  created.TimeSlot,
	})
	s.dispatch(ctx, created.ID, bookedMessage(patient, doctor, created))

	return created, nil
}

// SetStatus moves an appointment along the lifecycle on behalf of its doctor.
func (s *Service) SetStatus(ctx context.Context, caller auth.Identity, id uuid.UUID, rawStatus string) (*Appointment, error) {
	target, err := ParseStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	if !caller.Valid() {
		return nil, ErrUnauthorized
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, storageError("load appointment", err)
	}

	if err := CheckTransition(caller, appt, target); err != nil {
		return nil, err
	}

	updated, err := s.repo.CompareAndSetStatus(ctx, appt.ID, appt.Status, target)
	if err != nil {
		switch {
		case errors.Is(err, ErrStaleStatus):
			return nil, fmt.Errorf("%w: appointment changed concurrently", ErrInvalidTransition)
		case errors.Is(err, ErrNotFound):
			return nil, err
		default:
			return nil, storageError("update appointment status", err)
		}
	}

	s.log.Info("appointment status changed",
		zap.String("appointment_id", updated.ID.String()),
		zap.String("from", string(appt.Status)),
		zap.String("to", string(updated.Status)),
	)

	switch updated.Status {
	case StatusCompleted:
		s.logEvent(ctx, updated.ID, EventAppointmentCompleted, map[string]any{"by": caller.ID.String()})
		s.notifyCompleted(ctx, updated)
	case StatusCancelled:
		s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{"by": caller.ID.String()})
	}

	return updated, nil
}

// ListAppointments returns the caller's own appointments, newest first. Admins see all.
func (s *Service) ListAppointments(ctx context.Context, caller auth.Identity, page Page) ([]AppointmentDetail, error) {
	if !caller.Valid() {
		return nil, ErrUnauthorized
	}

	page = page.Normalize()
	filter := ListFilter{Limit: page.Limit, Offset: page.Offset}

	switch caller.Role {
	case auth.RolePatient:
		filter.PatientID = &caller.ID
	case auth.RoleDoctor:
		filter.DoctorID = &caller.ID
	case auth.RoleAdmin:
	}

	appointments, err := s.repo.ListAppointments(ctx, filter)
	if err != nil {
		return nil, storageError("list appointments", err)
	}

	parties := make(map[uuid.UUID]*Party)
	lookup := func(id uuid.UUID) (*Party, error) {
		if p, ok := parties[id]; ok {
			return p, nil
		}
		a, err := s.accounts.Resolve(ctx, id)
		if err != nil {
			if errors.Is(err, account.ErrAccountNotFound) {
				parties[id] = nil
				return nil, nil
			}
			return nil, storageError("resolve account", err)
		}
		p := &Party{ID: a.ID, Name: a.Name, Email: a.Email, Specialization: a.Specialization}
		parties[id] = p
		return p, nil
	}

	details := make([]AppointmentDetail, 0, len(appointments))
	for _, a := range appointments {
		patient, err := lookup(a.PatientID)
		if err != nil {
			return nil, err
		}
		doctor, err := lookup(a.DoctorID)
		if err != nil {
			return nil, err
		}
		details = append(details, AppointmentDetail{Appointment: a, Patient: patient, Doctor: doctor})
	}
	return details, nil
}

// ListDoctors returns the active doctors patients can book with.
func (s *Service) ListDoctors(ctx context.Context) ([]account.Account, error) {
	doctors, err := s.accounts.ListActiveDoctors(ctx)
	if err != nil {
		return nil, storageError("list doctors", err)
	}
	return doctors, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// resolveAccount loads id and checks it is an active account with the given role.
func (s *Service) resolveAccount(ctx context.Context, id uuid.UUID, role auth.Role) (*account.Account, error) {
	a, err := s.accounts.Resolve(ctx, id)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: %s %s does not exist", ErrInvalidReference, role, id)
		}
		return nil, storageError("resolve account", err)
	}
	if a.Role != role || !a.IsActive {
		return nil, fmt.Errorf("%w: %s is not an active %s", ErrInvalidReference, id, role)
	}
	return a, nil
}

func (s *Service) notifyCompleted(ctx context.Context, appt *Appointment) {
	patient, err := s.accounts.Resolve(ctx, appt.PatientID)
	if err != nil {
		s.log.Warn("completion notification skipped", zap.String("appointment_id", appt.ID.String()), zap.Error(err))
		return
	}
	doctor, err := s.accounts.Resolve(ctx, appt.DoctorID)
	if err != nil {
		s.log.Warn("completion notification skipped", zap.String("appointment_id", appt.ID.String()), zap.Error(err))
		return
	}
	s.dispatch(ctx, appt.ID, completedMessage(patient, doctor))
}

// dispatch sends msg without letting a failure reach the caller. It runs detached
// from the request's cancellation but bounded by NotifyTimeout.
func (s *Service) dispatch(ctx context.Context, appointmentID uuid.UUID, msg notify.Message) {
	ctx = context.WithoutCancel(ctx)
	if s.cfg.NotifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.NotifyTimeout)
		defer cancel()
	}

	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.log.Warn("notification failed",
			zap.String("appointment_id", appointmentID.String()),
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal event payload", zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(context.WithoutCancel(ctx), ev); err != nil {
		s.log.Warn("failed to insert event log",
			zap.String("event_type", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
	}
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

func bookedMessage(patient, doctor *account.Account, appt *Appointment) notify.Message {
	return notify.Message{
		To:      patient.Email,
		Subject: "Appointment Booked",
		Body: fmt.Sprintf("Your appointment with Dr. %s is confirmed on %s at %s.",
			doctor.Name, appt.Date.Format("Mon Jan 2 2006"), appt.TimeSlot),
	}
}

func completedMessage(patient, doctor *account.Account) notify.Message {
	return notify.Message{
		To:      patient.Email,
		Subject: "Appointment Completed",
		Body:    fmt.Sprintf("Your appointment with Dr. %s has been marked as completed.", doctor.Name),
	}
}
