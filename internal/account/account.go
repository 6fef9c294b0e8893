package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/auth"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("email already registered")
)

type Account struct {
	ID             uuid.UUID
	Name           string
	Email          string
	Role           auth.Role
	Specialization *string
	IsActive       bool
	CreatedAt      time.Time
}

// Directory is the read side of the account store the booking engine depends on.
type Directory interface {
	Resolve(ctx context.Context, id uuid.UUID) (*Account, error)
	ListActiveDoctors(ctx context.Context) ([]Account, error)
}

// Registry creates accounts. Only the seeding paths write accounts.
type Registry interface {
	CreateAccount(ctx context.Context, a Account) (*Account, error)
}
