// README: Contact directory backed by the users table.
package user

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rxflow/internal/types"
)

var (
	ErrNotFound   = fmt.Errorf("user %w", types.ErrNotFound)
	ErrBadRequest = fmt.Errorf("user: %w", types.ErrInvalidInput)
)

var e164 = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Contact(ctx context.Context, id types.ID) (Contact, error) {
	var c Contact
	var role string
	err := s.db.QueryRow(ctx, `
		SELECT id, name, phone, email, role FROM users WHERE id = $1`, string(id),
	).Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &role)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	if err != nil {
		return Contact{}, err
	}
	c.Role = Role(role)
	return c, nil
}

// FirstWithRole returns the oldest user holding role. It backs the default
// notification sender when none is configured.
func (s *Store) FirstWithRole(ctx context.Context, role Role) (Contact, error) {
	var c Contact
	err := s.db.QueryRow(ctx, `
		SELECT id, name, phone, email FROM users
		WHERE role = $1
		ORDER BY created_at
		LIMIT 1`, string(role),
	).Scan(&c.ID, &c.Name, &c.Phone, &c.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	if err != nil {
		return Contact{}, err
	}
	c.Role = role
	return c, nil
}

// Upsert creates or replaces a contact. Phones must be E.164.
func (s *Store) Upsert(ctx context.Context, c Contact) error {
	if err := validate(c); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, name, phone, email, role)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, phone = EXCLUDED.phone, email = EXCLUDED.email, role = EXCLUDED.role`,
		string(c.ID), c.Name, c.Phone, strings.ToLower(c.Email), string(c.Role),
	)
	return err
}

func validate(c Contact) error {
	if c.ID == "" || strings.TrimSpace(c.Name) == "" || !c.Role.Valid() {
		return ErrBadRequest
	}
	if c.Phone != "" && !e164.MatchString(c.Phone) {
		return ErrBadRequest
	}
	return nil
}
