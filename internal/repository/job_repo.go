package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/GTDGit/pricewatch/internal/models"
	"github.com/GTDGit/pricewatch/internal/utils"
)

// JobRepository provides access to the crawl_jobs table.
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a job. Jobs are written once, in their terminal state.
func (r *JobRepository) Create(ctx context.Context, job *models.CrawlJob) error {
	const q = `
        INSERT INTO crawl_jobs (
            id, target, mode, sites, status, started_at, completed_at, products_found, failure_reason, error
        ) VALUES (
            :id, :target, :mode, :sites, :status, :started_at, :completed_at, :products_found, :failure_reason, :error
        )`
	row := *job
	row.StartedAt = row.StartedAt.UTC()
	if row.CompletedAt != nil {
		at := row.CompletedAt.UTC()
		row.CompletedAt = &at
	}
	_, err := r.db.NamedExecContext(ctx, q, &row)
	return err
}

// GetByID returns the job with id or utils.ErrJobNotFound.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.CrawlJob, error) {
	q := r.db.Rebind(`SELECT * FROM crawl_jobs WHERE id = ?`)
	var job models.CrawlJob
	if err := r.db.GetContext(ctx, &job, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// ListRecent returns up to limit jobs after skipping offset, newest first.
func (r *JobRepository) ListRecent(ctx context.Context, limit, offset int) ([]models.CrawlJob, error) {
	q := r.db.Rebind(`SELECT * FROM crawl_jobs ORDER BY started_at DESC, id LIMIT ? OFFSET ?`)
	jobs := []models.CrawlJob{}
	if err := r.db.SelectContext(ctx, &jobs, q, limit, offset); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Count returns the number of stored jobs.
func (r *JobRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM crawl_jobs`); err != nil {
		return 0, err
	}
	return n, nil
}
