package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/GTDGit/pricewatch/internal/models"
)

// SnapshotRepository stores product snapshots and their rows.
type SnapshotRepository struct {
	db *sqlx.DB
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(db *sqlx.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// productRow is one snapshot_products row.
type productRow struct {
	SnapshotID string `db:"snapshot_id"`
	Position   int    `db:"position"`
	models.Product
}

// Save writes the snapshot header and its products in one transaction,
// keeping the crawl order in position.
func (r *SnapshotRepository) Save(ctx context.Context, snap *models.Snapshot) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const header = `INSERT INTO snapshots (id, source_set, job_id, observed_at) VALUES (?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, tx.Rebind(header), snap.ID, snap.SourceSet, snap.JobID, snap.ObservedAt.UTC()); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	if len(snap.Products) > 0 {
		const q = `
        INSERT INTO snapshot_products (
            snapshot_id, position, site, name, source_url, current_price, original_price, discount_rate,
            stock_status, image_url, category, brand, review_count, review_rating
        ) VALUES (
            :snapshot_id, :position, :site, :name, :source_url, :current_price, :original_price, :discount_rate,
            :stock_status, :image_url, :category, :brand, :review_count, :review_rating
        )`
		stmt, err := tx.PrepareNamedContext(ctx, q)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, p := range snap.Products {
			if _, err := stmt.ExecContext(ctx, productRow{SnapshotID: snap.ID, Position: i, Product: p}); err != nil {
				return fmt.Errorf("insert snapshot product %d: %w", i, err)
			}
		}
	}

	return tx.Commit()
}

// Latest returns up to n snapshots of sourceSet, newest first, with their
// products in crawl order.
func (r *SnapshotRepository) Latest(ctx context.Context, sourceSet string, n int) ([]models.Snapshot, error) {
	q := r.db.Rebind(`
        SELECT id, source_set, job_id, observed_at FROM snapshots
        WHERE source_set = ? ORDER BY observed_at DESC, id DESC LIMIT ?`)
	snaps := []models.Snapshot{}
	if err := r.db.SelectContext(ctx, &snaps, q, sourceSet, n); err != nil {
		return nil, err
	}

	pq := r.db.Rebind(`SELECT * FROM snapshot_products WHERE snapshot_id = ? ORDER BY position`)
	for i := range snaps {
		var rows []productRow
		if err := r.db.SelectContext(ctx, &rows, pq, snaps[i].ID); err != nil {
			return nil, err
		}
		products := make([]models.Product, len(rows))
		for j, row := range rows {
			products[j] = row.Product
		}
		snaps[i].Products = products
	}
	return snaps, nil
}

// PricePoints returns the observed prices of sourceSet, oldest first.
// A zero from or to leaves that side of the range open.
func (r *SnapshotRepository) PricePoints(ctx context.Context, sourceSet string, from, to time.Time) ([]models.PricePoint, error) {
	var sb strings.Builder
	sb.WriteString(`
        SELECT p.source_url, p.current_price, s.observed_at
        FROM snapshot_products p
        JOIN snapshots s ON s.id = p.snapshot_id
        WHERE s.source_set = ?`)
	args := []any{sourceSet}
	if !from.IsZero() {
		sb.WriteString(` AND s.observed_at >= ?`)
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		sb.WriteString(` AND s.observed_at <= ?`)
		args = append(args, to.UTC())
	}
	sb.WriteString(` ORDER BY s.observed_at, p.position`)

	points := []models.PricePoint{}
	if err := r.db.SelectContext(ctx, &points, r.db.Rebind(sb.String()), args...); err != nil {
		return nil, err
	}
	return points, nil
}
