package models

import "time"

// Car is one scraped advertisement. The canonical link is the sole
// deduplication key; the numeric ID is assigned by the store at insert.
type Car struct {
	ID          int64   `json:"id" db:"id"`
	Title       string  `json:"title" db:"title"`
	Link        string  `json:"link" db:"link"`
	Price       Price   `json:"price" db:"price"`
	Brand       string  `json:"brand" db:"brand"`
	Year        *int    `json:"year" db:"year"`
	Mileage     *int    `json:"mileage" db:"mileage"` // km
	Features    string  `json:"features" db:"features"`
	Description *string `json:"description" db:"description"`
	DatePosted  string  `json:"date_posted" db:"date_posted"`
	Place       string  `json:"place" db:"place"`
	FilterName  string  `json:"filter_name" db:"filter_name"`

	// Lifecycle flags. Notified is set once, after the first notification
	// went out; EligibleForRecheck gates the change-detection queue.
	Notified           bool `json:"is_notified" db:"is_notified"`
	EligibleForRecheck bool `json:"eligible_for_recheck" db:"eligible_for_recheck"`

	// Change history. PreviousPrice and PreviousDescription hold the value
	// immediately before the latest recorded change, not the original one.
	PreviousPrice        *string    `json:"previous_price" db:"previous_price"`
	PreviousDescription  *string    `json:"previous_description" db:"previous_description"`
	PriceChangedAt       *time.Time `json:"price_changed_at" db:"price_changed_at"`
	DescriptionChangedAt *time.Time `json:"description_changed_at" db:"description_changed_at"`
	PriceChanges         int        `json:"price_changes_count" db:"price_changes_count"`
	DescriptionChanges   int        `json:"description_changes_count" db:"description_changes_count"`

	LastCheckedAt    *time.Time `json:"last_checked_at" db:"last_checked_at"` // nil = never checked
	Available        bool       `json:"is_available" db:"is_available"`
	UnavailableSince *time.Time `json:"unavailable_since" db:"unavailable_since"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RawCar is a candidate record returned by the listing source before it is
// reconciled against the store.
type RawCar struct {
	Title       string  `json:"title"`
	Link        string  `json:"link"`
	Price       string  `json:"price"`
	Brand       string  `json:"brand"`
	Year        *int    `json:"year"`
	Mileage     *int    `json:"mileage"`
	Features    string  `json:"features"`
	Description *string `json:"description"`
	DatePosted  string  `json:"date_posted"`
	Place       string  `json:"place"`
}

// CarSnapshot is the current state of a single ad fetched by link during a
// re-check.
type CarSnapshot struct {
	Title       string `json:"title"`
	Price       string `json:"price"`
	Description string `json:"description"`
}
