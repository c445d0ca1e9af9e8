// README: Delivery store backed by PostgreSQL; the delivery document lives in a JSONB column.
package delivery

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rxflow/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, d *Delivery) error {
	d.Version = 1
	doc, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO deliveries (id, order_id, zone_id, status, version, created_at, doc)
		VALUES ($1, $2, $3, $4, 1, $5, $6)`,
		string(d.ID),
		string(d.OrderID),
		string(d.ZoneID),
		string(d.Status),
		d.CreatedAt,
		doc,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Delivery, error) {
	var doc []byte
	var version int
	err := s.db.QueryRow(ctx, `SELECT doc, version FROM deliveries WHERE id = $1`, string(id)).Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var d Delivery
	if err := json.Unmarshal(doc, &d); err != nil {
		return nil, err
	}
	d.Version = version
	return &d, nil
}

func (s *Store) Save(ctx context.Context, d *Delivery) error {
	next := *d
	next.Version = d.Version + 1
	doc, err := json.Marshal(&next)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE deliveries
		SET status = $1, version = version + 1, doc = $2
		WHERE id = $3 AND version = $4`,
		string(d.Status), doc, string(d.ID), d.Version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrConflict
	}
	d.Version = next.Version
	return nil
}

func (s *Store) Delete(ctx context.Context, id types.ID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM deliveries WHERE id = $1`, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
