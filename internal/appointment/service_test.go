package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/account"
	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/notify"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

// -- Fakes --

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) messages() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Message(nil), n.sent...)
}

// countingRepo counts writes so tests can assert none happened.
type countingRepo struct {
	*MemoryRepository
	mu      sync.Mutex
	creates int
}

func (r *countingRepo) CreateIfAbsent(ctx context.Context, appt Appointment) (*Appointment, error) {
	r.mu.Lock()
	r.creates++
	r.mu.Unlock()
	return r.MemoryRepository.CreateIfAbsent(ctx, appt)
}

// brokenRepo fails every call the way a lost database connection would.
type brokenRepo struct {
	*MemoryRepository
}

var errConnLost = errors.New("connection refused")

func (brokenRepo) CreateIfAbsent(context.Context, Appointment) (*Appointment, error) {
	return nil, errConnLost
}

func (brokenRepo) FindByDoctorAndDate(context.Context, uuid.UUID, time.Time) ([]BookedSlot, error) {
	return nil, errConnLost
}

func (brokenRepo) GetAppointmentByID(context.Context, uuid.UUID) (*Appointment, error) {
	return nil, context.DeadlineExceeded
}

func (brokenRepo) ListAppointments(context.Context, ListFilter) ([]Appointment, error) {
	return nil, errConnLost
}

type fixedLocker struct {
	err error
}

func (l fixedLocker) WithBookingLock(ctx context.Context, _ string, fn func(context.Context) error) error {
	if l.err != nil {
		return l.err
	}
	return fn(ctx)
}

// tryLocker behaves like SETNX: a key held by one caller is refused to others.
type tryLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newTryLocker() *tryLocker {
	return &tryLocker{held: make(map[string]bool)}
}

func (l *tryLocker) WithBookingLock(ctx context.Context, key string, fn func(context.Context) error) error {
	l.mu.Lock()
	if l.held[key] {
		l.mu.Unlock()
		return redisclient.ErrLockNotAcquired
	}
	l.held[key] = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()
	return fn(ctx)
}

// stallingRepo hangs the first insert until its context ends. Later inserts
// pass through.
type stallingRepo struct {
	*countingRepo
	entered chan struct{}
	once    sync.Once
}

func (r *stallingRepo) CreateIfAbsent(ctx context.Context, appt Appointment) (*Appointment, error) {
	first := false
	r.once.Do(func() { first = true })
	if first {
		close(r.entered)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return r.countingRepo.CreateIfAbsent(ctx, appt)
}

// -- Fixture --

type fixture struct {
	svc      *Service
	repo     *countingRepo
	dir      *account.MemoryDirectory
	notifier *recordingNotifier
	doctor   account.Account
	doctor2  account.Account
	patient  account.Account
	patient2 account.Account
	admin    account.Account
	day      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:     &countingRepo{MemoryRepository: NewMemoryRepository()},
		dir:      account.NewMemoryDirectory(),
		notifier: &recordingNotifier{},
		day:      time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
	}
	f.doctor = f.dir.Put(account.Account{Name: "Meredith Grey", Email: "grey@clinic.test", Role: auth.RoleDoctor, IsActive: true})
	f.doctor2 = f.dir.Put(account.Account{Name: "Derek Shepherd", Email: "shepherd@clinic.test", Role: auth.RoleDoctor, IsActive: true})
	f.patient = f.dir.Put(account.Account{Name: "Pat Doe", Email: "pat@example.com", Role: auth.RolePatient, IsActive: true})
	f.patient2 = f.dir.Put(account.Account{Name: "Sam Roe", Email: "sam@example.com", Role: auth.RolePatient, IsActive: true})
	f.admin = f.dir.Put(account.Account{Name: "Ada Admin", Email: "admin@clinic.test", Role: auth.RoleAdmin, IsActive: true})

	f.svc = NewService(f.repo, f.dir, f.notifier, nil, config.Config{NotifyTimeout: time.Second}, zap.NewNop())
	return f
}

func identityOf(a account.Account) auth.Identity {
	return auth.Identity{ID: a.ID, Role: a.Role}
}

func (f *fixture) book(t *testing.T, slot string) *Appointment {
	t.Helper()
	appt, err := f.svc.Book(context.Background(), identityOf(f.patient), BookingRequest{
		DoctorID: f.doctor.ID,
		Date:     f.day,
		TimeSlot: slot,
	})
	require.NoError(t, err)
	return appt
}

// -- Availability --

func TestListAvailableSlots(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh doctor sees the whole grid", func(t *testing.T) {
		f := newFixture(t)
		slots, err := f.svc.ListAvailableSlots(ctx, f.doctor.ID, f.day)
		require.NoError(t, err)
		assert.Equal(t, Grid(), slots)
	})

	t.Run("booking removes exactly that slot", func(t *testing.T) {
		f := newFixture(t)
		f.book(t, "9:00-9:30")

		slots, err := f.svc.ListAvailableSlots(ctx, f.doctor.ID, f.day)
		require.NoError(t, err)
		assert.Len(t, slots, 15)
		assert.NotContains(t, slots, "9:00-9:30")
		assert.Equal(t, "9:30-10:00", slots[0])
	})

	t.Run("other doctors and dates are unaffected", func(t *testing.T) {
		f := newFixture(t)
		f.book(t, "9:00-9:30")

		slots, err := f.svc.ListAvailableSlots(ctx, f.doctor2.ID, f.day)
		require.NoError(t, err)
		assert.Len(t, slots, 16)

		slots, err = f.svc.ListAvailableSlots(ctx, f.doctor.ID, f.day.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.Len(t, slots, 16)
	})

	t.Run("cancelled booking frees the slot, completed does not", func(t *testing.T) {
		f := newFixture(t)
		cancelled := f.book(t, "9:00-9:30")
		completed := f.book(t, "14:00-14:30")
		doc := identityOf(f.doctor)

		_, err := f.svc.SetStatus(ctx, doc, cancelled.ID, "cancelled")
		require.NoError(t, err)
		_, err = f.svc.SetStatus(ctx, doc, completed.ID, "completed")
		require.NoError(t, err)

		slots, err := f.svc.ListAvailableSlots(ctx, f.doctor.ID, f.day)
		require.NoError(t, err)
		assert.Contains(t, slots, "9:00-9:30")
		assert.NotContains(t, slots, "14:00-14:30")
		assert.Len(t, slots, 15)

		// and the freed slot can be booked again
		again := f.book(t, "9:00-9:30")
		assert.NotEqual(t, cancelled.ID, again.ID)
	})

	t.Run("time of day on the date is ignored", func(t *testing.T) {
		f := newFixture(t)
		f.book(t, "9:00-9:30")

		slots, err := f.svc.ListAvailableSlots(ctx, f.doctor.ID, f.day.Add(15*time.Hour))
		require.NoError(t, err)
		assert.Len(t, slots, 15)
	})

	t.Run("invalid references", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.ListAvailableSlots(ctx, uuid.Nil, f.day)
		assert.ErrorIs(t, err, ErrInvalidReference)

		_, err = f.svc.ListAvailableSlots(ctx, f.doctor.ID, time.Time{})
		assert.ErrorIs(t, err, ErrInvalidReference)

		_, err = f.svc.ListAvailableSlots(ctx, uuid.New(), f.day)
		assert.ErrorIs(t, err, ErrInvalidReference)

		_, err = f.svc.ListAvailableSlots(ctx, f.patient.ID, f.day)
		assert.ErrorIs(t, err, ErrInvalidReference)
	})
}

// -- Booking --

func TestBook(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a booked appointment and notifies the patient", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, "10:30-11:00")

		assert.Equal(t, StatusBooked, appt.Status)
		assert.Equal(t, f.patient.ID, appt.PatientID)
		assert.Equal(t, f.doctor.ID, appt.DoctorID)
		assert.Equal(t, f.day, appt.Date)
		assert.Equal(t, "10:30-11:00", appt.TimeSlot)
		assert.False(t, appt.CreatedAt.IsZero())

		msgs := f.notifier.messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, "pat@example.com", msgs[0].To)
		assert.Equal(t, "Appointment Booked", msgs[0].Subject)
		assert.Contains(t, msgs[0].Body, "Dr. Meredith Grey")
		assert.Contains(t, msgs[0].Body, "Tue Jun 10 2025")
		assert.Contains(t, msgs[0].Body, "10:30-11:00")

		events := f.repo.Events()
		require.Len(t, events, 1)
		assert.Equal(t, EventAppointmentBooked, events[0].EventType)
		assert.Equal(t, appt.ID, *events[0].AppointmentID)
	})

	t.Run("second booking of the same slot conflicts", func(t *testing.T) {
		f := newFixture(t)
		first := f.book(t, "9:00-9:30")

		_, err := f.svc.Book(ctx, identityOf(f.patient2), BookingRequest{DoctorID: f.doctor.ID, Date: f.day, TimeSlot: "9:00-9:30"})
		assert.ErrorIs(t, err, ErrSlotConflict)

		stored, err := f.repo.GetAppointmentByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusBooked, stored.Status)
	})

	t.Run("doctor id resolving to a patient is rejected before any write", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Book(ctx, identityOf(f.patient), BookingRequest{DoctorID: f.patient2.ID, Date: f.day, TimeSlot: "9:00-9:30"})
		assert.ErrorIs(t, err, ErrInvalidReference)
		assert.Zero(t, f.repo.creates)
		assert.Empty(t, f.notifier.messages())
	})

	t.Run("inactive or unknown doctor", func(t *testing.T) {
		f := newFixture(t)
		retired := f.dir.Put(account.Account{Name: "Retired", Email: "r@clinic.test", Role: auth.RoleDoctor, IsActive: false})

		_, err := f.svc.Book(ctx, identityOf(f.patient), BookingRequest{DoctorID: retired.ID, Date: f.day, TimeSlot: "9:00-9:30"})
		assert.ErrorIs(t, err, ErrInvalidReference)

		_, err = f.svc.Book(ctx, identityOf(f.patient), BookingRequest{DoctorID: uuid.New(), Date: f.day, TimeSlot: "9:00-9:30"})
		assert.ErrorIs(t, err, ErrInvalidReference)
		assert.Zero(t, f.repo.creates)
	})

	t.Run("malformed request", func(t *testing.T) {
		f := newFixture(t)
		caller := identityOf(f.patient)

		for name, req := range map[string]BookingRequest{
			"no doctor":    {Date: f.day, TimeSlot: "9:00-9:30"},
			"no date":      {DoctorID: f.doctor.ID, TimeSlot: "9:00-9:30"},
			"off grid":     {DoctorID: f.doctor.ID, Date: f.day, TimeSlot: "17:00-17:30"},
			"padded label": {DoctorID: f.doctor.ID, Date: f.day, TimeSlot: "09:00-09:30"},
		} {
			_, err := f.svc.Book(ctx, caller, req)
			assert.ErrorIs(t, err, ErrInvalidReference, name)
		}
		assert.Zero(t, f.repo.creates)
	})

	t.Run("caller must be an active patient", func(t *testing.T) {
		f := newFixture(t)
		req := BookingRequest{DoctorID: f.doctor.ID, Date: f.day, TimeSlot: "9:00-9:30"}

		_, err := f.svc.Book(ctx, auth.Identity{}, req)
		assert.ErrorIs(t, err, ErrUnauthorized)

		_, err = f.svc.Book(ctx, identityOf(f.doctor2), req)
		assert.ErrorIs(t, err, ErrForbidden)

		_, err = f.svc.Book(ctx, identityOf(f.admin), req)
		assert.ErrorIs(t, err, ErrForbidden)

		// token claims patient but the account is something else
		_, err = f.svc.Book(ctx, auth.Identity{ID: f.doctor2.ID, Role: auth.RolePatient}, req)
		assert.ErrorIs(t, err, ErrInvalidReference)

		assert.Zero(t, f.repo.creates)
	})

	t.Run("notification failure does not fail the booking", func(t *testing.T) {
		f := newFixture(t)
		f.notifier.err = errors.New("broker down")

		appt := f.book(t, "15:00-15:30")
		assert.Equal(t, StatusBooked, appt.Status)
	})

	t.Run("lock held elsewhere defers to the store", func(t *testing.T) {
		f := newFixture(t)
		f.svc.locker = fixedLocker{err: redisclient.ErrLockNotAcquired}

		appt := f.book(t, "9:00-9:30")
		assert.Equal(t, StatusBooked, appt.Status)
		assert.Equal(t, 1, f.repo.creates)

		_, err := f.svc.Book(ctx, identityOf(f.patient2), BookingRequest{DoctorID: f.doctor.ID, Date: f.day, TimeSlot: "9:00-9:30"})
		assert.ErrorIs(t, err, ErrSlotConflict)
	})

	t.Run("failed lock holder does not block a contending booking", func(t *testing.T) {
		f := newFixture(t)
		locker := newTryLocker()
		f.svc.locker = locker

		holderCtx, cancelHolder := context.WithCancel(ctx)
		stalled := &stallingRepo{countingRepo: f.repo, entered: make(chan struct{})}
		f.svc.repo = stalled
		req := BookingRequest{DoctorID: f.doctor.ID, Date: f.day, TimeSlot: "9:00-9:30"}

		holderErr := make(chan error, 1)
		go func() {
			_, err := f.svc.Book(holderCtx, identityOf(f.patient), req)
			holderErr <- err
		}()
		<-stalled.entered

		// The first caller holds the lock while its insert hangs; the second
		// goes to the store and wins the slot.
		appt, err := f.svc.Book(ctx, identityOf(f.patient2), req)
		require.NoError(t, err)
		assert.Equal(t, f.patient2.ID, appt.PatientID)

		cancelHolder()
		assert.ErrorIs(t, <-holderErr, ErrStorageUnavailable)

		slots, err := f.svc.ListAvailableSlots(ctx, f.doctor.ID, f.day)
		require.NoError(t, err)
		assert.NotContains(t, slots, "9:00-9:30")
	})

	t.Run("failed lock holder leaves the slot bookable", func(t *testing.T) {
		f := newFixture(t)
		f.svc.locker = newTryLocker()
		f.svc.repo = brokenRepo{MemoryRepository: f.repo.MemoryRepository}

		_, err := f.svc.Book(ctx, identityOf(f.patient), BookingRequest{DoctorID: f.doctor.ID, Date: f.day, TimeSlot: "9:00-9:30"})
		assert.ErrorIs(t, err, ErrStorageUnavailable)

		f.svc.repo = f.repo
		appt := f.book(t, "9:00-9:30")
		assert.Equal(t, StatusBooked, appt.Status)
	})

	t.Run("lock backend down falls back to the store", func(t *testing.T) {
		f := newFixture(t)
		f.svc.locker = fixedLocker{err: redisclient.ErrLockUnavailable}

		appt := f.book(t, "9:00-9:30")
		assert.Equal(t, StatusBooked, appt.Status)

		_, err := f.svc.Book(ctx, identityOf(f.patient2), BookingRequest{DoctorID: f.doctor.ID, Date: f.day, TimeSlot: "9:00-9:30"})
		assert.ErrorIs(t, err, ErrSlotConflict)
	})
}

func TestBookConcurrentSameSlot(t *testing.T) {
	for round := 0; round < 20; round++ {
		f := newFixture(t)
		callers := []auth.Identity{identityOf(f.patient), identityOf(f.patient2)}
		req := BookingRequest{DoctorID: f.doctor.ID, Date: f.day, TimeSlot: "13:30-14:00"}

		var wg sync.WaitGroup
		results := make([]error, len(callers))
		start := make(chan struct{})
		for i, caller := range callers {
			wg.Add(1)
			go func(i int, caller auth.Identity) {
				defer wg.Done()
				<-start
				_, results[i] = f.svc.Book(context.Background(), caller, req)
			}(i, caller)
		}
		close(start)
		wg.Wait()

		var ok, conflicts int
		for _, err := range results {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrSlotConflict):
				conflicts++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		require.Equal(t, 1, ok)
		require.Equal(t, 1, conflicts)

		all, err := f.repo.ListAppointments(context.Background(), ListFilter{})
		require.NoError(t, err)
		require.Len(t, all, 1)
	}
}

// -- Lifecycle --

func TestSetStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("owner completes, then cancel is an invalid transition", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, "11:00-11:30")
		doc := identityOf(f.doctor)

		done, err := f.svc.SetStatus(ctx, doc, appt.ID, "completed")
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, done.Status)

		_, err = f.svc.SetStatus(ctx, doc, appt.ID, "cancelled")
		assert.ErrorIs(t, err, ErrInvalidTransition)

		msgs := f.notifier.messages()
		require.Len(t, msgs, 2)
		assert.Equal(t, "Appointment Completed", msgs[1].Subject)
		assert.Equal(t, "pat@example.com", msgs[1].To)
		assert.Contains(t, msgs[1].Body, "Dr. Meredith Grey")

		events := f.repo.Events()
		require.Len(t, events, 2)
		assert.Equal(t, EventAppointmentCompleted, events[1].EventType)
	})

	t.Run("cancel records an event and sends nothing", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, "11:00-11:30")

		got, err := f.svc.SetStatus(ctx, identityOf(f.doctor), appt.ID, "cancelled")
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, got.Status)
		assert.Len(t, f.notifier.messages(), 1)

		events := f.repo.Events()
		require.Len(t, events, 2)
		assert.Equal(t, EventAppointmentCancelled, events[1].EventType)
	})

	t.Run("terminal states reject every caller and target", func(t *testing.T) {
		f := newFixture(t)
		completed := f.book(t, "9:00-9:30")
		cancelled := f.book(t, "9:30-10:00")
		doc := identityOf(f.doctor)
		_, err := f.svc.SetStatus(ctx, doc, completed.ID, "completed")
		require.NoError(t, err)
		_, err = f.svc.SetStatus(ctx, doc, cancelled.ID, "cancelled")
		require.NoError(t, err)

		callers := []auth.Identity{doc, identityOf(f.doctor2), identityOf(f.patient), identityOf(f.admin)}
		for _, id := range []uuid.UUID{completed.ID, cancelled.ID} {
			for _, caller := range callers {
				for _, target := range []string{"booked", "completed", "cancelled"} {
					_, err := f.svc.SetStatus(ctx, caller, id, target)
					assert.ErrorIs(t, err, ErrInvalidTransition, "%s by %s", target, caller.Role)
				}
			}
		}
	})

	t.Run("another doctor is forbidden", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, "9:00-9:30")

		_, err := f.svc.SetStatus(ctx, identityOf(f.doctor2), appt.ID, "completed")
		assert.ErrorIs(t, err, ErrForbidden)

		_, err = f.svc.SetStatus(ctx, identityOf(f.patient), appt.ID, "cancelled")
		assert.ErrorIs(t, err, ErrForbidden)

		stored, err := f.repo.GetAppointmentByID(ctx, appt.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusBooked, stored.Status)
	})

	t.Run("unknown status is rejected before identity", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, "9:00-9:30")

		_, err := f.svc.SetStatus(ctx, auth.Identity{}, appt.ID, "confirmed")
		assert.ErrorIs(t, err, ErrInvalidStatus)

		_, err = f.svc.SetStatus(ctx, auth.Identity{}, appt.ID, "completed")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("booked to booked is not a transition", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, "9:00-9:30")

		_, err := f.svc.SetStatus(ctx, identityOf(f.doctor), appt.ID, "booked")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("missing appointment", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.SetStatus(ctx, identityOf(f.doctor), uuid.New(), "completed")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("completion notification failure is swallowed", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, "9:00-9:30")
		f.notifier.err = errors.New("smtp down")

		got, err := f.svc.SetStatus(ctx, identityOf(f.doctor), appt.ID, "completed")
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, got.Status)
	})
}

func TestSetStatusConcurrentCompleteAndCancel(t *testing.T) {
	for round := 0; round < 20; round++ {
		f := newFixture(t)
		appt := f.book(t, "16:00-16:30")
		doc := identityOf(f.doctor)

		targets := []string{"completed", "cancelled"}
		results := make([]error, len(targets))
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i, target := range targets {
			wg.Add(1)
			go func(i int, target string) {
				defer wg.Done()
				<-start
				_, results[i] = f.svc.SetStatus(context.Background(), doc, appt.ID, target)
			}(i, target)
		}
		close(start)
		wg.Wait()

		var applied int
		for _, err := range results {
			if err == nil {
				applied++
				continue
			}
			require.ErrorIs(t, err, ErrInvalidTransition)
		}
		require.Equal(t, 1, applied)
	}
}

// -- Listing --

func TestListAppointments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	mine := f.book(t, "9:00-9:30")
	_, err := f.svc.Book(ctx, identityOf(f.patient2), BookingRequest{DoctorID: f.doctor2.ID, Date: f.day, TimeSlot: "9:00-9:30"})
	require.NoError(t, err)

	t.Run("patient sees own bookings with parties resolved", func(t *testing.T) {
		got, err := f.svc.ListAppointments(ctx, identityOf(f.patient), Page{})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, mine.ID, got[0].ID)
		require.NotNil(t, got[0].Doctor)
		assert.Equal(t, "Meredith Grey", got[0].Doctor.Name)
		require.NotNil(t, got[0].Patient)
		assert.Equal(t, "pat@example.com", got[0].Patient.Email)
	})

	t.Run("doctor sees own bookings", func(t *testing.T) {
		got, err := f.svc.ListAppointments(ctx, identityOf(f.doctor2), Page{})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, f.patient2.ID, got[0].PatientID)
	})

	t.Run("admin sees everything", func(t *testing.T) {
		got, err := f.svc.ListAppointments(ctx, identityOf(f.admin), Page{Limit: 500})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("paging", func(t *testing.T) {
		got, err := f.svc.ListAppointments(ctx, identityOf(f.admin), Page{Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("page normalization", func(t *testing.T) {
		assert.Equal(t, Page{Limit: 20}, Page{}.Normalize())
		assert.Equal(t, Page{Limit: 100, Offset: 3}, Page{Limit: 500, Offset: 3}.Normalize())
		assert.Equal(t, Page{Limit: 5}, Page{Limit: 5, Offset: -2}.Normalize())
	})

	t.Run("no identity", func(t *testing.T) {
		_, err := f.svc.ListAppointments(ctx, auth.Identity{}, Page{})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestListDoctors(t *testing.T) {
	f := newFixture(t)
	doctors, err := f.svc.ListDoctors(context.Background())
	require.NoError(t, err)
	require.Len(t, doctors, 2)
	assert.Equal(t, "Derek Shepherd", doctors[0].Name)
}

// -- Storage failures --

func TestStorageFailuresSurfaceAsUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.svc.repo = &brokenRepo{MemoryRepository: NewMemoryRepository()}

	_, err := f.svc.ListAvailableSlots(ctx, f.doctor.ID, f.day)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, errConnLost)

	_, err = f.svc.Book(ctx, identityOf(f.patient), BookingRequest{DoctorID: f.doctor.ID, Date: f.day, TimeSlot: "9:00-9:30"})
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.NotErrorIs(t, err, ErrSlotConflict)

	_, err = f.svc.SetStatus(ctx, identityOf(f.doctor), uuid.New(), "completed")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = f.svc.ListAppointments(ctx, identityOf(f.patient), Page{})
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}
