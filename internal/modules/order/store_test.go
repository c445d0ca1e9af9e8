package order

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rxflow/internal/infra"
	"rxflow/internal/types"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("RXFLOW_TEST_DB_DSN")
	if dsn == "" {
		t.Skip("RXFLOW_TEST_DB_DSN not set; skipping DB-backed store tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := infra.EnsureSchema(ctx, db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	if _, err := db.Exec(ctx, "TRUNCATE TABLE orders"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return NewStore(db)
}

func TestStore_RoundTripAndVersioning(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	o := &Order{
		ID:             types.NewID(),
		OrderNumber:    FormatNumber(now, 1),
		RequesterID:    "cust-1",
		Type:           TypeOTC,
		Medications:    []Medication{{Name: "Paracetamol", Quantity: 1}},
		DeliveryMethod: MethodPickup,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	o.refreshCategory()
	require.NoError(t, store.Create(ctx, o))

	dup := *o
	dup.ID = types.NewID()
	require.ErrorIs(t, store.Create(ctx, &dup), ErrDuplicateNumber)

	got, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, CategoryCustomerPickup, got.Category)

	got.recordStatus(StatusProcessing, "", "staff", now)
	require.NoError(t, store.Save(ctx, got))
	assert.Equal(t, 2, got.Version)

	stale := *got
	stale.Version = 1
	require.ErrorIs(t, store.Save(ctx, &stale), ErrConflict)

	n, err := store.CountWithPrefix(ctx, "ORD-"+now.Format("200601")+"-")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, store.Delete(ctx, o.ID))
	_, err = store.Get(ctx, o.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

type fixedCounter int64

func (c fixedCounter) CountWithPrefix(context.Context, string) (int64, error) {
	return int64(c), nil
}

func TestRedisSequence_SeedsFromStoredCount(t *testing.T) {
	addr := os.Getenv("RXFLOW_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RXFLOW_TEST_REDIS_ADDR not set; skipping integration test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ctx := context.Background()
	month := time.Date(1999, 7, 1, 0, 0, 0, 0, time.UTC)
	key := "seq:orders:" + month.Format("200601")
	require.NoError(t, rdb.Del(ctx, key).Err())
	t.Cleanup(func() { rdb.Del(context.Background(), key) })

	seq := NewRedisSequence(rdb, fixedCounter(41))
	n, err := seq.Next(ctx, month)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	n, err = seq.Next(ctx, month)
	require.NoError(t, err)
	assert.Equal(t, int64(43), n)
}
