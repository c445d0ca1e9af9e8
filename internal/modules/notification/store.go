// README: Notification store backed by PostgreSQL; the document lives in a JSONB column.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rxflow/internal/types"
)

// sweepBatch bounds how many due notifications one sweep loads.
const sweepBatch = 500

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, n *Notification) error {
	n.Version = 1
	doc, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO notifications (id, scheduled_for, has_pending, version, created_at, doc)
		VALUES ($1, $2, $3, 1, $4, $5)`,
		string(n.ID), n.ScheduledFor, n.HasPending(), n.CreatedAt, doc,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Notification, error) {
	n, err := scanNotification(s.db.QueryRow(ctx, `SELECT doc, version FROM notifications WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return n, err
}

func (s *Store) Save(ctx context.Context, n *Notification) error {
	next := *n
	next.Version = n.Version + 1
	doc, err := json.Marshal(&next)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE notifications
		SET scheduled_for = $1, has_pending = $2, version = version + 1, doc = $3
		WHERE id = $4 AND version = $5`,
		n.ScheduledFor, n.HasPending(), doc, string(n.ID), n.Version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrConflict
	}
	n.Version = next.Version
	return nil
}

func (s *Store) Due(ctx context.Context, now time.Time) ([]*Notification, error) {
	rows, err := s.db.Query(ctx, `
		SELECT doc, version FROM notifications
		WHERE has_pending AND scheduled_for <= $1
		ORDER BY scheduled_for
		LIMIT $2`, now, sweepBatch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var doc []byte
	var version int
	if err := row.Scan(&doc, &version); err != nil {
		return nil, err
	}
	var n Notification
	if err := json.Unmarshal(doc, &n); err != nil {
		return nil, err
	}
	n.Version = version
	return &n, nil
}
