package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/travelops/importhub/internal/domain"
)

type priceSnapshotRepository struct {
	db DBTX
}

// NewPriceSnapshotRepository wires a repository backed by pgx.
func NewPriceSnapshotRepository(db DBTX) PriceSnapshotRepository {
	return &priceSnapshotRepository{db: db}
}

func (r *priceSnapshotRepository) LatestBefore(ctx context.Context, kind domain.JobKind, itemKey string, before time.Time) (*domain.PriceSnapshot, error) {
	row := r.db.QueryRow(
		ctx,
		`SELECT id, kind, item_key, value::text, captured_at
		 FROM price_snapshots
		 WHERE kind = $1 AND item_key = $2 AND captured_at < $3
		 ORDER BY captured_at DESC
		 LIMIT 1`,
		string(kind),
		itemKey,
		before,
	)

	var (
		snapshot   domain.PriceSnapshot
		kindValue  string
		value      string
		capturedAt pgtype.Timestamptz
	)
	if err := row.Scan(&snapshot.ID, &kindValue, &snapshot.ItemKey, &value, &capturedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}

	snapshot.Kind = domain.JobKind(kindValue)
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot value %q: %w", value, err)
	}
	snapshot.Value = parsed
	if capturedAt.Valid {
		snapshot.CapturedAt = capturedAt.Time
	}

	return &snapshot, nil
}

func (r *priceSnapshotRepository) Insert(ctx context.Context, snapshot domain.PriceSnapshot) error {
	_, err := r.db.Exec(
		ctx,
		`INSERT INTO price_snapshots (id, kind, item_key, value, captured_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		snapshot.ID,
		string(snapshot.Kind),
		snapshot.ItemKey,
		snapshot.Value.String(),
		snapshot.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}
