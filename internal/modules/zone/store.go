// README: Zone store backed by PostgreSQL; the zone document lives in a JSONB column.
package zone

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

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, z *Zone) error {
	doc, err := json.Marshal(z)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO delivery_zones (id, name, version, created_at, doc)
		VALUES ($1, $2, 1, $3, $4)`,
		string(z.ID), z.Name, z.CreatedAt, doc,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateName
	}
	if err != nil {
		return err
	}
	z.Version = 1
	return nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Zone, error) {
	row := s.db.QueryRow(ctx, `SELECT doc, version FROM delivery_zones WHERE id = $1`, string(id))
	z, err := scanZone(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return z, err
}

func (s *Store) List(ctx context.Context) ([]*Zone, error) {
	rows, err := s.db.Query(ctx, `SELECT doc, version FROM delivery_zones ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var zones []*Zone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

// Save writes z if its version is still current and bumps the version.
func (s *Store) Save(ctx context.Context, z *Zone) error {
	doc, err := json.Marshal(z)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE delivery_zones SET name = $1, doc = $2, version = version + 1
		WHERE id = $3 AND version = $4`,
		z.Name, doc, string(z.ID), z.Version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrConflict
	}
	z.Version++
	return nil
}

func scanZone(row pgx.Row) (*Zone, error) {
	var doc []byte
	var version int
	if err := row.Scan(&doc, &version); err != nil {
		return nil, err
	}
	var z Zone
	if err := json.Unmarshal(doc, &z); err != nil {
		return nil, err
	}
	z.Version = version
	return &z, nil
}
