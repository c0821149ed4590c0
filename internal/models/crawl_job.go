package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CrawlMode selects which crawler operation a job runs.
type CrawlMode string

const (
	ModeSearch   CrawlMode = "search"
	ModeCategory CrawlMode = "category"
	ModeDetail   CrawlMode = "detail"
)

// Valid reports whether m is a known mode.
func (m CrawlMode) Valid() bool {
	return m == ModeSearch || m == ModeCategory || m == ModeDetail
}

// Job failure reasons.
const (
	FailureAllCrawlersFailed = "ALL_CRAWLERS_FAILED"
	FailureCancelled         = "CANCELLED"
)

// CrawlJob records one execution of the pipeline against a target.
// Only the coordinator that created it mutates it.
type CrawlJob struct {
	ID            string     `db:"id" json:"id"`
	Target        string     `db:"target" json:"target"`
	Mode          CrawlMode  `db:"mode" json:"mode"`
	Sites         string     `db:"sites" json:"sites"`
	Status        JobStatus  `db:"status" json:"status"`
	StartedAt     time.Time  `db:"started_at" json:"startedAt"`
	CompletedAt   *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	ProductsFound int        `db:"products_found" json:"productsFound"`
	FailureReason *string    `db:"failure_reason" json:"failureReason,omitempty"`
	Error         *string    `db:"error" json:"error,omitempty"`
}

// NewCrawlJob creates a pending job with a fresh id.
func NewCrawlJob(target string, mode CrawlMode, sites string, now time.Time) *CrawlJob {
	return &CrawlJob{
		ID:        uuid.New().String(),
		Target:    target,
		Mode:      mode,
		Sites:     sites,
		Status:    JobPending,
		StartedAt: now.UTC(),
	}
}

// Start moves the job from pending to running.
func (j *CrawlJob) Start() error {
	if j.Status != JobPending {
		return fmt.Errorf("cannot start job in status %s", j.Status)
	}
	j.Status = JobRunning
	return nil
}

// Complete marks the job completed with the number of products collected.
func (j *CrawlJob) Complete(productsFound int, at time.Time) error {
	if j.Status != JobRunning {
		return fmt.Errorf("cannot complete job in status %s", j.Status)
	}
	at = at.UTC()
	j.Status = JobCompleted
	j.ProductsFound = productsFound
	j.CompletedAt = &at
	return nil
}

// Fail marks the job failed. Products are never reported for failed jobs.
func (j *CrawlJob) Fail(reason string, cause error, at time.Time) error {
	if j.Status.Terminal() {
		return fmt.Errorf("cannot fail job in status %s", j.Status)
	}
	at = at.UTC()
	j.Status = JobFailed
	j.ProductsFound = 0
	j.CompletedAt = &at
	j.FailureReason = &reason
	if cause != nil {
		msg := cause.Error()
		j.Error = &msg
	}
	return nil
}
