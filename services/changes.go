package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"car_scrooper/config"
	"car_scrooper/models"
	"car_scrooper/scraper"
)

// noInformation stands in for an absent description so comparisons never
// fire on a missing-vs-empty difference.
const noInformation = "no information"

// CheckStore is the slice of listing storage the change-detection engine
// needs.
type CheckStore interface {
	CarsNeedingRecheck(ctx context.Context, cutoff time.Time, unavailableExpiry time.Duration, limit int) ([]*models.Car, error)
	GetCarsByIDs(ctx context.Context, ids []int64) ([]*models.Car, error)
	RecordPriceChange(ctx context.Context, id int64, oldPrice, newPrice string) error
	RecordDescriptionChange(ctx context.Context, id int64, oldDescription, newDescription string) error
	TouchLastChecked(ctx context.Context, id int64) error
	MarkUnavailable(ctx context.Context, id int64) error
}

// ChangesService is the change-detection engine: it refetches stored listings
// and records price and description movements.
type ChangesService struct {
	store    CheckStore
	source   scraper.Source
	notifier Notifier
	cfg      *config.ChangesConfig
	recorder RunRecorder
	guard    ConnectionGuard

	// sleep is swappable so tests run without real pauses.
	sleep func(time.Duration)
}

func NewChangesService(store CheckStore, source scraper.Source, notifier Notifier, cfg *config.ChangesConfig, recorder RunRecorder) *ChangesService {
	return &ChangesService{
		store:    store,
		source:   source,
		notifier: notifier,
		cfg:      cfg,
		recorder: recorder,
		sleep:    time.Sleep,
	}
}

// SetGuard installs a pre-fetch connectivity check.
func (s *ChangesService) SetGuard(guard ConnectionGuard) {
	s.guard = guard
}

// CheckAllCars walks every listing whose last check is older than the stale
// window, in batches, oldest first. Listings that error keep their old
// timestamp and come back in the next pass.
func (s *ChangesService) CheckAllCars(ctx context.Context) (*models.CheckSummary, error) {
	if s.guard != nil {
		if err := s.guard.EnsureConnected(); err != nil {
			return nil, err
		}
	}

	summary := &models.CheckSummary{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
	}

	run := s.startCheckRun(summary)

	// The eligible set is selected once, with the cutoff fixed for the
	// whole pass. A listing that errors keeps its old timestamp but is
	// attempted exactly once here; it retries on the next scheduled pass.
	cutoff := summary.StartedAt.Add(-s.cfg.StaleAfter)
	cars, err := s.store.CarsNeedingRecheck(ctx, cutoff, s.cfg.UnavailableExpiry, 0)
	if err != nil {
		s.finishCheckRun(run, summary, err)
		return summary, err
	}

	batchSize := s.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = len(cars) + 1
	}

	for start := 0; start < len(cars); start += batchSize {
		if err := ctx.Err(); err != nil {
			s.finishCheckRun(run, summary, err)
			return summary, err
		}

		end := start + batchSize
		if end > len(cars) {
			end = len(cars)
		}
		for _, car := range cars[start:end] {
			s.checkCar(ctx, car, summary)
		}

		if end < len(cars) {
			s.sleep(s.cfg.BatchPause)
		}
	}

	summary.FinishedAt = time.Now()
	s.finishCheckRun(run, summary, nil)

	if err := s.notifier.CheckSummary(summary); err != nil {
		log.Printf("Changes: summary notification failed: %v", err)
	}

	return summary, nil
}

// CheckCars rechecks a specific set of listings regardless of staleness.
func (s *ChangesService) CheckCars(ctx context.Context, ids []int64) (*models.CheckSummary, error) {
	summary := &models.CheckSummary{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
	}

	cars, err := s.store.GetCarsByIDs(ctx, ids)
	if err != nil {
		return summary, err
	}

	run := s.startCheckRun(summary)

	for _, car := range cars {
		if err := ctx.Err(); err != nil {
			s.finishCheckRun(run, summary, err)
			return summary, err
		}
		s.checkCar(ctx, car, summary)
	}

	summary.FinishedAt = time.Now()
	s.finishCheckRun(run, summary, nil)

	if err := s.notifier.CheckSummary(summary); err != nil {
		log.Printf("Changes: summary notification failed: %v", err)
	}

	return summary, nil
}

// checkCar refetches one listing and classifies the outcome: gone, price
// change, description change, no change, or error. Only a successful check
// advances last_checked_at; errors leave the car stale for the next pass.
func (s *ChangesService) checkCar(ctx context.Context, car *models.Car, summary *models.CheckSummary) {
	summary.Checked++

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	snapshot, err := s.source.Refetch(fetchCtx, car.Link)
	cancel()

	if errors.Is(err, scraper.ErrListingGone) {
		log.Printf("Changes: listing gone: %s", car.Link)
		if err := s.store.MarkUnavailable(ctx, car.ID); err != nil {
			log.Printf("Changes: failed to mark unavailable: %v", err)
			summary.Errors++
			return
		}
		summary.Unavailable++
		s.touch(ctx, car.ID)
		if err := s.notifier.CarUnavailable(car); err != nil {
			log.Printf("Changes: unavailable notification failed: %v", err)
		}
		return
	}
	if err != nil {
		log.Printf("Changes: check failed for %s: %v", car.Link, err)
		summary.Errors++
		return
	}

	changes := s.classify(car, snapshot)
	if !changes.Any() {
		s.touch(ctx, car.ID)
		return
	}

	if changes.PriceChanged {
		if err := s.store.RecordPriceChange(ctx, car.ID, changes.OldPrice, changes.NewPrice); err != nil {
			log.Printf("Changes: failed to record price change: %v", err)
			summary.Errors++
			return
		}
		summary.PriceChanges++
	}
	if changes.DescriptionChanged {
		if err := s.store.RecordDescriptionChange(ctx, car.ID, changes.OldDescription, changes.NewDescription); err != nil {
			log.Printf("Changes: failed to record description change: %v", err)
			summary.Errors++
			return
		}
		summary.DescriptionChanges++
	}

	summary.Changed++
	s.touch(ctx, car.ID)

	if err := s.notifier.CarChanged(car, changes); err != nil {
		log.Printf("Changes: change notification failed: %v", err)
	}
}

func (s *ChangesService) classify(car *models.Car, snapshot *models.CarSnapshot) *models.ChangeSet {
	changes := &models.ChangeSet{}

	oldPrice := strings.TrimSpace(car.Price.Display())
	newPrice := strings.TrimSpace(snapshot.Price)
	if newPrice != "" && newPrice != oldPrice {
		changes.PriceChanged = true
		changes.OldPrice = oldPrice
		changes.NewPrice = newPrice
	}

	oldDesc := normalizeDescription(car.Description)
	newDesc := strings.TrimSpace(snapshot.Description)
	if newDesc == "" {
		newDesc = noInformation
	}
	if newDesc != oldDesc {
		changes.DescriptionChanged = true
		changes.OldDescription = oldDesc
		changes.NewDescription = newDesc
	}

	return changes
}

func normalizeDescription(desc *string) string {
	if desc == nil {
		return noInformation
	}
	trimmed := strings.TrimSpace(*desc)
	if trimmed == "" {
		return noInformation
	}
	return trimmed
}

func (s *ChangesService) touch(ctx context.Context, id int64) {
	if err := s.store.TouchLastChecked(ctx, id); err != nil {
		log.Printf("Changes: failed to touch last_checked_at: %v", err)
	}
}

func (s *ChangesService) startCheckRun(summary *models.CheckSummary) *models.CheckRun {
	if s.recorder == nil {
		return nil
	}

	run := &models.CheckRun{
		RunID:     summary.RunID.String(),
		StartedAt: summary.StartedAt,
		Status:    models.RunStatusRunning,
	}
	id, err := s.recorder.CreateCheckRun(run)
	if err != nil {
		log.Printf("Changes: failed to record run start: %v", err)
		return nil
	}
	run.ID = id
	return run
}

func (s *ChangesService) finishCheckRun(run *models.CheckRun, summary *models.CheckSummary, err error) {
	if s.recorder == nil || run == nil {
		return
	}

	now := time.Now()
	run.FinishedAt = &now
	run.Status = models.RunStatusCompleted
	if err != nil {
		run.Status = models.RunStatusFailed
		s.recorder.Log(&run.ID, models.LogLevelError, err.Error(), "changes")
	}
	run.Checked = summary.Checked
	run.PriceChanges = summary.PriceChanges
	run.DescriptionChanges = summary.DescriptionChanges
	run.Unavailable = summary.Unavailable
	run.ErrorsCount = summary.Errors

	if err := s.recorder.UpdateCheckRun(run); err != nil {
		log.Printf("Changes: failed to record run finish: %v", err)
	}
}
