package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// MonitorRun records one ingestion pass over a single filter.
type MonitorRun struct {
	ID            int64      `json:"id" db:"id"`
	FilterName    string     `json:"filter_name" db:"filter_name"`
	StartedAt     time.Time  `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time `json:"finished_at" db:"finished_at"`
	Status        RunStatus  `json:"status" db:"status"`
	ListingsFound int        `json:"listings_found" db:"listings_found"`
	ListingsNew   int        `json:"listings_new" db:"listings_new"`
	ErrorsCount   int        `json:"errors_count" db:"errors_count"`
}

// CheckRun records one change-detection pass.
type CheckRun struct {
	ID                 int64      `json:"id" db:"id"`
	RunID              string     `json:"run_id" db:"run_id"`
	StartedAt          time.Time  `json:"started_at" db:"started_at"`
	FinishedAt         *time.Time `json:"finished_at" db:"finished_at"`
	Status             RunStatus  `json:"status" db:"status"`
	Checked            int        `json:"checked" db:"checked"`
	PriceChanges       int        `json:"price_changes" db:"price_changes"`
	DescriptionChanges int        `json:"description_changes" db:"description_changes"`
	Unavailable        int        `json:"unavailable" db:"unavailable"`
	ErrorsCount        int        `json:"errors_count" db:"errors_count"`
}
