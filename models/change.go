package models

import (
	"time"

	"github.com/google/uuid"
)

// ChangeSet describes what a single re-check found different on one car.
// Price and description changes are independent: either, both, or neither
// may be set.
type ChangeSet struct {
	PriceChanged bool   `json:"price_changed"`
	OldPrice     string `json:"old_price,omitempty"`
	NewPrice     string `json:"new_price,omitempty"`

	DescriptionChanged bool   `json:"description_changed"`
	OldDescription     string `json:"old_description,omitempty"`
	NewDescription     string `json:"new_description,omitempty"`
}

func (c *ChangeSet) Any() bool {
	return c.PriceChanged || c.DescriptionChanged
}

// CheckSummary is the run-level outcome of one change-detection pass,
// delivered to the notifier once per pass.
type CheckSummary struct {
	RunID              uuid.UUID `json:"run_id"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
	Checked            int       `json:"checked"`
	Changed            int       `json:"changed"`
	PriceChanges       int       `json:"price_changes"`
	DescriptionChanges int       `json:"description_changes"`
	Unavailable        int       `json:"unavailable"`
	Errors             int       `json:"errors"`
}

func (s *CheckSummary) Elapsed() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// CarCheckResult is the per-car outcome of a targeted re-check.
type CarCheckResult struct {
	CarID      int64      `json:"car_id"`
	Title      string     `json:"title"`
	HasChanges bool       `json:"has_changes"`
	Changes    *ChangeSet `json:"changes,omitempty"`
	Err        string     `json:"error,omitempty"`
}

// ChangesSummary aggregates recorded changes over a lookback window.
type ChangesSummary struct {
	Days               int `json:"days"`
	PriceChanges       int `json:"price_changes"`
	DescriptionChanges int `json:"description_changes"`
	Unavailable        int `json:"unavailable"`
}

// PriceDrop is one significant price decrease found by the analysis query.
type PriceDrop struct {
	Car       *Car      `json:"car"`
	DropEuros int       `json:"drop_euros"`
	DropPct   float64   `json:"drop_percentage"`
	ChangedAt time.Time `json:"changed_at"`
}
