package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBooking(doctorID uuid.UUID, date time.Time, slot string) Appointment {
	return Appointment{
		PatientID: uuid.New(),
		DoctorID:  doctorID,
		Date:      date,
		TimeSlot:  slot,
		Status:    StatusBooked,
	}
}

func TestMemoryRepositoryCreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	doctorID := uuid.New()
	day := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)

	first, err := repo.CreateIfAbsent(ctx, newBooking(doctorID, day, "9:00-9:30"))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	_, err = repo.CreateIfAbsent(ctx, newBooking(doctorID, day, "9:00-9:30"))
	assert.ErrorIs(t, err, ErrSlotConflict)

	// different slot, date or doctor are independent keys
	_, err = repo.CreateIfAbsent(ctx, newBooking(doctorID, day, "9:30-10:00"))
	assert.NoError(t, err)
	_, err = repo.CreateIfAbsent(ctx, newBooking(doctorID, day.AddDate(0, 0, 1), "9:00-9:30"))
	assert.NoError(t, err)
	_, err = repo.CreateIfAbsent(ctx, newBooking(uuid.New(), day, "9:00-9:30"))
	assert.NoError(t, err)

	// cancelling frees the key, completing does not
	_, err = repo.CompareAndSetStatus(ctx, first.ID, StatusBooked, StatusCancelled)
	require.NoError(t, err)
	again, err := repo.CreateIfAbsent(ctx, newBooking(doctorID, day, "9:00-9:30"))
	require.NoError(t, err)

	_, err = repo.CompareAndSetStatus(ctx, again.ID, StatusBooked, StatusCompleted)
	require.NoError(t, err)
	_, err = repo.CreateIfAbsent(ctx, newBooking(doctorID, day, "9:00-9:30"))
	assert.ErrorIs(t, err, ErrSlotConflict)
}

func TestMemoryRepositoryConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	doctorID := uuid.New()
	day := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)

	const attempts = 50
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := repo.CreateIfAbsent(ctx, newBooking(doctorID, day, "10:00-10:30"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
			} else if assert.ErrorIs(t, err, ErrSlotConflict) {
				conflicts++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, attempts-1, conflicts)
}

func TestMemoryRepositoryCompareAndSetStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	a, err := repo.CreateIfAbsent(ctx, newBooking(uuid.New(), time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC), "11:00-11:30"))
	require.NoError(t, err)

	_, err = repo.CompareAndSetStatus(ctx, uuid.New(), StatusBooked, StatusCompleted)
	assert.ErrorIs(t, err, ErrNotFound)

	updated, err := repo.CompareAndSetStatus(ctx, a.ID, StatusBooked, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, updated.Status)

	_, err = repo.CompareAndSetStatus(ctx, a.ID, StatusBooked, StatusCancelled)
	assert.ErrorIs(t, err, ErrStaleStatus)

	stored, err := repo.GetAppointmentByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
}

func TestMemoryRepositoryListAppointments(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	doctorID := uuid.New()
	patientID := uuid.New()
	day := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)

	for i, slot := range Grid()[:5] {
		b := newBooking(doctorID, day, slot)
		if i%2 == 0 {
			b.PatientID = patientID
		}
		_, err := repo.CreateIfAbsent(ctx, b)
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	all, err := repo.ListAppointments(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.Equal(t, "11:00-11:30", all[0].TimeSlot, "newest first")

	mine, err := repo.ListAppointments(ctx, ListFilter{PatientID: &patientID})
	require.NoError(t, err)
	assert.Len(t, mine, 3)

	page, err := repo.ListAppointments(ctx, ListFilter{DoctorID: &doctorID, Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	empty, err := repo.ListAppointments(ctx, ListFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}
