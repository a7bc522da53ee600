package store

import (
	"context"
	"errors"
	"fmt"

	storeerrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	readSlotSQL  = `SELECT value FROM cart_slots WHERE key = $1`
	writeSlotSQL = `INSERT INTO cart_slots (key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
)

// PgStore implements Slot using PostgreSQL as the data store.
type PgStore struct {
	db *pgxpool.Pool
}

// NewPgStore creates a new instance of Slot using a PostgreSQL connection pool.
func NewPgStore(dbp *pgxpool.Pool) *PgStore {
	return &PgStore{
		db: dbp,
	}
}

// Read retrieves the value stored under key.
// Returns ErrSlotEmpty if no row exists for the key.
func (p *PgStore) Read(ctx context.Context, key string) ([]byte, error) {
	var value string
	if err := p.db.QueryRow(ctx, readSlotSQL, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storeerrors.ErrSlotEmpty
		}
		return nil, fmt.Errorf("failed to read slot %s: %w", key, err)
	}
	return []byte(value), nil
}

// Write upserts the value stored under key.
func (p *PgStore) Write(ctx context.Context, key string, value []byte) error {
	if _, err := p.db.Exec(ctx, writeSlotSQL, key, string(value)); err != nil {
		return fmt.Errorf("failed to write slot %s: %w", key, err)
	}
	return nil
}
