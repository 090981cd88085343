package scraper

import (
	"context"
	"errors"

	"car_scrooper/config"
	"car_scrooper/models"
)

// ErrListingGone signals the site served its not-found page for an ad. It is
// a classification outcome for change detection, not a failure.
var ErrListingGone = errors.New("listing no longer exists")

// Source produces listing records for the ingestion and change-detection
// engines.
type Source interface {
	// Scrape loads the filter's search results. knownLinks lets the source
	// skip per-ad enrichment for listings the store already has; callers
	// must still treat returned records as unverified candidates.
	Scrape(ctx context.Context, filter *config.FilterConfig, knownLinks map[string]bool) ([]models.RawCar, error)

	// Refetch loads the current state of one ad by canonical link.
	// Returns ErrListingGone when the site reports the ad removed.
	Refetch(ctx context.Context, link string) (*models.CarSnapshot, error)
}
