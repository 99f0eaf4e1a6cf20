package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"thermoguard/internal/models"
)

const createCooldownTable = `
	CREATE TABLE IF NOT EXISTS alert_cooldowns (
		key       TEXT PRIMARY KEY,
		metric    TEXT NOT NULL,
		direction TEXT NOT NULL,
		sent_at   TIMESTAMPTZ NOT NULL,
		value     DOUBLE PRECISION NOT NULL
	)
`

// PostgresStore keeps cooldown records in the alert_cooldowns table.
// The pool is shared with other components and is not closed by the store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates the table if needed.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, createCooldownTable); err != nil {
		return nil, fmt.Errorf("create alert_cooldowns: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*models.Record, error) {
	var (
		rec       models.Record
		metric    string
		direction string
	)

	err := s.pool.QueryRow(ctx,
		`SELECT metric, direction, sent_at, value FROM alert_cooldowns WHERE key = $1`,
		key,
	).Scan(&metric, &direction, &rec.SentAt, &rec.Value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select cooldown %s: %w", key, err)
	}

	rec.Metric = models.Metric(metric)
	rec.Direction = models.Direction(direction)
	rec.SentAt = rec.SentAt.UTC()
	return &rec, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, rec models.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alert_cooldowns (key, metric, direction, sent_at, value)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE
		SET metric = EXCLUDED.metric,
		    direction = EXCLUDED.direction,
		    sent_at = EXCLUDED.sent_at,
		    value = EXCLUDED.value`,
		key, string(rec.Metric), string(rec.Direction), rec.SentAt, rec.Value,
	)
	if err != nil {
		return fmt.Errorf("upsert cooldown %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Close() error { return nil }
