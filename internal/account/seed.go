package account

import (
	"context"
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/hackgods/clinic-booking/internal/auth"
)

var specializations = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

// Faker builds plausible demo accounts. A fixed seed gives a repeatable set.
type Faker struct {
	f *gofakeit.Faker
}

func NewFaker(seed uint64) *Faker {
	return &Faker{f: gofakeit.New(seed)}
}

func (fk *Faker) Doctor() Account {
	spec := specializations[fk.f.Number(0, len(specializations)-1)]
	name := fk.f.Name()
	return Account{
		Name:           name,
		Email:          emailFor(fk.f, name, "clinic.test"),
		Role:           auth.RoleDoctor,
		Specialization: &spec,
		IsActive:       true,
	}
}

func (fk *Faker) Patient() Account {
	name := fk.f.Name()
	return Account{
		Name:     name,
		Email:    emailFor(fk.f, name, fk.f.DomainName()),
		Role:     auth.RolePatient,
		IsActive: true,
	}
}

// emailFor derives a mostly unique address; the random suffix keeps the
// accounts.email unique index happy on large seeds.
func emailFor(f *gofakeit.Faker, name, domain string) string {
	local := strings.ToLower(strings.Join(strings.Fields(name), "."))
	return fmt.Sprintf("%s.%s@%s", local, f.DigitN(6), domain)
}

// SeedResult lists what Seed created, by role.
type SeedResult struct {
	Doctors  []Account
	Patients []Account
	Admins   []Account
}

// Seed creates the requested number of doctors and patients plus one admin.
func Seed(ctx context.Context, reg Registry, fk *Faker, doctors, patients int) (SeedResult, error) {
	var res SeedResult

	create := func(a Account) (*Account, error) {
		created, err := reg.CreateAccount(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("create %s %s: %w", a.Role, a.Email, err)
		}
		return created, nil
	}

	for i := 0; i < doctors; i++ {
		a, err := create(fk.Doctor())
		if err != nil {
			return res, err
		}
		res.Doctors = append(res.Doctors, *a)
	}
	for i := 0; i < patients; i++ {
		a, err := create(fk.Patient())
		if err != nil {
			return res, err
		}
		res.Patients = append(res.Patients, *a)
	}

	admin, err := create(Account{
		Name:     "Clinic Admin",
		Email:    emailFor(fk.f, "admin", "clinic.test"),
		Role:     auth.RoleAdmin,
		IsActive: true,
	})
	if err != nil {
		return res, err
	}
	res.Admins = append(res.Admins, *admin)

	return res, nil
}
