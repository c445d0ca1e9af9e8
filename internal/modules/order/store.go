// README: Order store backed by PostgreSQL; the order document lives in a JSONB column.
package order

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"rxflow/internal/types"
)

const uniqueViolation = "23505"

// ErrDuplicateNumber is returned when an order number is already taken.
var ErrDuplicateNumber = errors.New("order number already exists")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, o *Order) error {
	o.Version = 1
	doc, err := json.Marshal(o)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO orders (id, order_number, requester_id, status, version, created_at, doc)
		VALUES ($1, $2, $3, $4, 1, $5, $6)`,
		string(o.ID),
		o.OrderNumber,
		string(o.RequesterID),
		string(o.Status),
		o.CreatedAt,
		doc,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateNumber
	}
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `SELECT doc, version FROM orders WHERE id = $1`, string(id))

	var doc []byte
	var version int
	err := row.Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var o Order
	if err := json.Unmarshal(doc, &o); err != nil {
		return nil, err
	}
	o.Version = version
	return &o, nil
}

// Save persists o when the stored version still matches o.Version.
func (s *Store) Save(ctx context.Context, o *Order) error {
	next := *o
	next.Version = o.Version + 1
	doc, err := json.Marshal(&next)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    version = version + 1,
		    doc = $2
		WHERE id = $3 AND version = $4`,
		string(o.Status),
		doc,
		string(o.ID),
		o.Version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		if _, err := s.Get(ctx, o.ID); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConflict
	}
	o.Version = next.Version
	return nil
}

func (s *Store) Delete(ctx context.Context, id types.ID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM orders WHERE id = $1`, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountWithPrefix counts orders whose number starts with prefix.
func (s *Store) CountWithPrefix(ctx context.Context, prefix string) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE order_number LIKE $1 || '%'`, prefix).Scan(&n)
	return n, err
}
