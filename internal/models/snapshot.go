package models

import "time"

// Snapshot is the product batch a completed job captured for a source set.
type Snapshot struct {
	ID         string    `db:"id" json:"id"`
	SourceSet  string    `db:"source_set" json:"sourceSet"`
	JobID      string    `db:"job_id" json:"jobId"`
	ObservedAt time.Time `db:"observed_at" json:"observedAt"`
	Products   []Product `db:"-" json:"products"`
}
