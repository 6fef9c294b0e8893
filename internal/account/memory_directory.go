package account

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/auth"
)

// MemoryDirectory keeps accounts in process memory. Used with STORE_DRIVER=memory and in tests.
type MemoryDirectory struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]Account
}

func NewMemoryDirectory(accounts ...Account) *MemoryDirectory {
	d := &MemoryDirectory{accounts: make(map[uuid.UUID]Account, len(accounts))}
	for _, a := range accounts {
		d.Put(a)
	}
	return d
}

// Put inserts or replaces an account, assigning an ID if it has none.
func (d *MemoryDirectory) Put(a Account) Account {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	d.mu.Lock()
	d.accounts[a.ID] = a
	d.mu.Unlock()
	return a
}

func (d *MemoryDirectory) Resolve(_ context.Context, id uuid.UUID) (*Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	a, ok := d.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &a, nil
}

func (d *MemoryDirectory) ListActiveDoctors(_ context.Context) ([]Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []Account
	for _, a := range d.accounts {
		if a.Role == auth.RoleDoctor && a.IsActive {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

// CreateAccount inserts a, refusing an email another account already holds.
func (d *MemoryDirectory) CreateAccount(_ context.Context, a Account) (*Account, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.accounts {
		if existing.Email == a.Email {
			return nil, fmt.Errorf("%w: %s", ErrEmailTaken, a.Email)
		}
	}
	d.accounts[a.ID] = a
	return &a, nil
}
