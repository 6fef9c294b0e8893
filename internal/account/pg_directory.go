package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-booking/internal/auth"
)

type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	var role string
	var specialization *string

	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Email,
		&role,
		&specialization,
		&a.IsActive,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	parsed, err := auth.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", a.ID, err)
	}
	a.Role = parsed
	a.Specialization = specialization
	return &a, nil
}

func (d *PgDirectory) Resolve(ctx context.Context, id uuid.UUID) (*Account, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, name, email, role, specialization, is_active, created_at
		FROM accounts
		WHERE id = $1
	`, id)
	return scanAccount(row)
}

func (d *PgDirectory) ListActiveDoctors(ctx context.Context) ([]Account, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, name, email, role, specialization, is_active, created_at
		FROM accounts
		WHERE role = $1 AND is_active
		ORDER BY name
	`, string(auth.RoleDoctor))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// CreateAccount inserts a new account. Used by the seed command.
func (d *PgDirectory) CreateAccount(ctx context.Context, a Account) (*Account, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := d.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, name, email, role, specialization, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING id, name, email, role, specialization, is_active, created_at
	`, a.ID, a.Name, a.Email, string(a.Role), a.Specialization, a.IsActive)

	created, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: %s", ErrEmailTaken, a.Email)
		}
		return nil, err
	}
	return created, nil
}
