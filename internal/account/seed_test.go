package account

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/auth"
)

func TestFaker(t *testing.T) {
	fk := NewFaker(42)

	doc := fk.Doctor()
	assert.Equal(t, auth.RoleDoctor, doc.Role)
	assert.True(t, doc.IsActive)
	require.NotNil(t, doc.Specialization)
	assert.Contains(t, specializations, *doc.Specialization)
	assert.Contains(t, doc.Email, "@clinic.test")

	pat := fk.Patient()
	assert.Equal(t, auth.RolePatient, pat.Role)
	assert.Nil(t, pat.Specialization)
	assert.NotEmpty(t, pat.Name)
	assert.Contains(t, pat.Email, "@")

	assert.Equal(t, NewFaker(7).Doctor().Name, NewFaker(7).Doctor().Name, "same seed, same output")
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory()

	res, err := Seed(ctx, dir, NewFaker(1), 3, 5)
	require.NoError(t, err)
	assert.Len(t, res.Doctors, 3)
	assert.Len(t, res.Patients, 5)
	require.Len(t, res.Admins, 1)

	doctors, err := dir.ListActiveDoctors(ctx)
	require.NoError(t, err)
	assert.Len(t, doctors, 3)

	for _, p := range res.Patients {
		got, err := dir.Resolve(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, auth.RolePatient, got.Role)
	}

	admin, err := dir.Resolve(ctx, res.Admins[0].ID)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, admin.Role)
}
