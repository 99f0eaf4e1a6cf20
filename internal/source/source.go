// Package source fetches the latest sensor reading from the backend database.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"thermoguard/internal/models"
)

// Source returns the most recent reading. It returns models.ErrNoReading when
// the backend has no rows yet.
type Source interface {
	Latest(ctx context.Context) (*models.Reading, error)
}

const latestReadingQuery = `
	SELECT id, temperatura, umidade, presenca_fumaca, data_hora
	FROM leituras_sensores
	ORDER BY id DESC
	LIMIT 1
`

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres reads from the leituras_sensores table. The pool is constructed
// once by the caller and shared.
type Postgres struct {
	db querier
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{db: pool}
}

func (p *Postgres) Latest(ctx context.Context) (*models.Reading, error) {
	var (
		id          int64
		temperatura *float64
		umidade     *float64
		fumaca      *float64
		dataHora    *time.Time
	)

	err := p.db.QueryRow(ctx, latestReadingQuery).Scan(&id, &temperatura, &umidade, &fumaca, &dataHora)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNoReading
	}
	if err != nil {
		return nil, fmt.Errorf("query latest reading: %w", err)
	}

	row := models.SensorRow{
		ID:             id,
		Temperatura:    temperatura,
		Umidade:        umidade,
		PresencaFumaca: fumaca,
	}
	if dataHora != nil {
		row.DataHora = dataHora.UTC().Format(time.RFC3339Nano)
	}

	return row.ToReading(time.Now())
}
