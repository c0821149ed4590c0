package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/GTDGit/pricewatch/internal/models"
)

// AlertRepository provides access to the price_alerts table.
type AlertRepository struct {
	db *sqlx.DB
}

// NewAlertRepository creates a new AlertRepository.
func NewAlertRepository(db *sqlx.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Save inserts alerts in one transaction.
func (r *AlertRepository) Save(ctx context.Context, alerts []models.PriceAlert) error {
	if len(alerts) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
        INSERT INTO price_alerts (
            id, kind, product_ref, product_name, site, message, observed_at, magnitude
        ) VALUES (
            :id, :kind, :product_ref, :product_name, :site, :message, :observed_at, :magnitude
        )`
	stmt, err := tx.PrepareNamedContext(ctx, q)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, a := range alerts {
		a.ObservedAt = a.ObservedAt.UTC()
		if _, err := stmt.ExecContext(ctx, a); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Recent returns alerts observed after since.
func (r *AlertRepository) Recent(ctx context.Context, since time.Time) ([]models.PriceAlert, error) {
	q := r.db.Rebind(`SELECT * FROM price_alerts WHERE observed_at > ? ORDER BY observed_at`)
	alerts := []models.PriceAlert{}
	if err := r.db.SelectContext(ctx, &alerts, q, since.UTC()); err != nil {
		return nil, err
	}
	return alerts, nil
}

// List returns up to limit alerts after skipping offset, newest first. An
// empty kind lists all kinds.
func (r *AlertRepository) List(ctx context.Context, limit, offset int, kind models.AlertKind) ([]models.PriceAlert, error) {
	alerts := []models.PriceAlert{}
	var err error
	if kind == "" {
		q := r.db.Rebind(`SELECT * FROM price_alerts ORDER BY observed_at DESC, id LIMIT ? OFFSET ?`)
		err = r.db.SelectContext(ctx, &alerts, q, limit, offset)
	} else {
		q := r.db.Rebind(`SELECT * FROM price_alerts WHERE kind = ? ORDER BY observed_at DESC, id LIMIT ? OFFSET ?`)
		err = r.db.SelectContext(ctx, &alerts, q, kind, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	return alerts, nil
}

// Count returns the number of stored alerts of kind, or of every kind when
// kind is empty.
func (r *AlertRepository) Count(ctx context.Context, kind models.AlertKind) (int, error) {
	var n int
	var err error
	if kind == "" {
		err = r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM price_alerts`)
	} else {
		err = r.db.GetContext(ctx, &n, r.db.Rebind(`SELECT COUNT(*) FROM price_alerts WHERE kind = ?`), kind)
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}
