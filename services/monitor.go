package services

import (
	"context"
	"log"
	"time"

	"car_scrooper/config"
	"car_scrooper/models"
	"car_scrooper/scraper"
)

// IngestStore is the slice of listing storage the ingestion engine needs.
type IngestStore interface {
	ExistingLinks(ctx context.Context, filterName string) (map[string]bool, error)
	ExistsByLink(ctx context.Context, link string) (bool, error)
	InsertCar(ctx context.Context, raw *models.RawCar, filterName string) (*models.Car, bool, error)
	MarkNotified(ctx context.Context, id int64) error
	UnnotifiedCars(ctx context.Context) ([]*models.Car, error)
}

// Notifier delivers alerts. The Telegram implementation lives in notify.
type Notifier interface {
	NewCar(car *models.Car, priority bool) error
	CarChanged(car *models.Car, changes *models.ChangeSet) error
	CarUnavailable(car *models.Car) error
	CheckSummary(summary *models.CheckSummary) error
	DailyChanges(summary *models.ChangesSummary) error
	PriceDrops(drops []models.PriceDrop, lookback time.Duration) error
	PrioritySummary(newByFilter map[string]int) error
	MonitorSummary(newByFilter map[string]int) error
}

// ConnectionGuard is checked before any scraping pass. The VPN wrapper
// implements it; a nil guard means scrape unconditionally.
type ConnectionGuard interface {
	EnsureConnected() error
}

// RunRecorder persists run bookkeeping and operational logs. Nil disables it.
type RunRecorder interface {
	CreateMonitorRun(run *models.MonitorRun) (int64, error)
	UpdateMonitorRun(run *models.MonitorRun) error
	CreateCheckRun(run *models.CheckRun) (int64, error)
	UpdateCheckRun(run *models.CheckRun) error
	Log(runID *int64, level models.LogLevel, message, source string) error
}

// MonitorService is the ingestion engine: it scrapes each filter, deduplicates
// against stored links and records new listings.
type MonitorService struct {
	store    IngestStore
	source   scraper.Source
	notifier Notifier
	filters  map[string]*config.FilterConfig
	order    []string
	recorder RunRecorder
	guard    ConnectionGuard
}

func NewMonitorService(store IngestStore, source scraper.Source, notifier Notifier, cfg *config.Config, recorder RunRecorder) *MonitorService {
	return &MonitorService{
		store:    store,
		source:   source,
		notifier: notifier,
		filters:  cfg.Filters,
		order:    cfg.FilterNames(),
		recorder: recorder,
	}
}

// SetGuard installs a pre-scrape connectivity check.
func (s *MonitorService) SetGuard(guard ConnectionGuard) {
	s.guard = guard
}

// RunAll scrapes every configured filter, priority filters first. The
// priority subset gets its own aggregate notification as soon as it is done,
// before the remaining filters run. A failing filter is logged and skipped;
// the remaining filters still run.
func (s *MonitorService) RunAll(ctx context.Context) error {
	if s.guard != nil {
		if err := s.guard.EnsureConnected(); err != nil {
			return err
		}
	}

	newByFilter := make(map[string]int)
	priorityByFilter := make(map[string]int)
	prioritySent := false

	for _, name := range s.order {
		if err := ctx.Err(); err != nil {
			return err
		}

		filter := s.filters[name]
		if !filter.Priority && !prioritySent {
			s.sendPrioritySummary(priorityByFilter)
			prioritySent = true
		}

		added, err := s.runFilter(ctx, filter)
		if err != nil {
			log.Printf("Monitor: filter %s failed: %v", name, err)
			continue
		}
		newByFilter[name] = added
		if filter.Priority {
			priorityByFilter[name] = added
		}
	}

	if !prioritySent {
		s.sendPrioritySummary(priorityByFilter)
	}

	if err := s.notifier.MonitorSummary(newByFilter); err != nil {
		log.Printf("Monitor: summary notification failed: %v", err)
	}

	return nil
}

func (s *MonitorService) sendPrioritySummary(priorityByFilter map[string]int) {
	if len(priorityByFilter) == 0 {
		return
	}
	if err := s.notifier.PrioritySummary(priorityByFilter); err != nil {
		log.Printf("Monitor: priority summary notification failed: %v", err)
	}
}

// RunFilter scrapes a single filter by name.
func (s *MonitorService) RunFilter(ctx context.Context, name string) (int, error) {
	filter, ok := s.filters[name]
	if !ok {
		return 0, &UnknownFilterError{Name: name}
	}
	return s.runFilter(ctx, filter)
}

func (s *MonitorService) runFilter(ctx context.Context, filter *config.FilterConfig) (added int, err error) {
	run := &models.MonitorRun{
		FilterName: filter.Name,
		StartedAt:  time.Now(),
		Status:     models.RunStatusRunning,
	}
	s.startRun(run)
	defer func() { s.finishRun(run, err) }()

	// Known links let the scraper skip per-ad enrichment for listings we
	// already hold. They are a hint only; the store re-checks below.
	known, err := s.store.ExistingLinks(ctx, filter.Name)
	if err != nil {
		return 0, err
	}

	raws, err := s.source.Scrape(ctx, filter, known)
	if err != nil {
		return 0, err
	}
	run.ListingsFound = len(raws)

	for i := range raws {
		raw := &raws[i]

		if known[raw.Link] {
			continue
		}

		// The snapshot of known links may be stale by now; the store
		// answer is authoritative.
		exists, err := s.store.ExistsByLink(ctx, raw.Link)
		if err != nil {
			log.Printf("Monitor: exists check failed for %s: %v", raw.Link, err)
			run.ErrorsCount++
			continue
		}
		if exists {
			continue
		}

		car, inserted, err := s.store.InsertCar(ctx, raw, filter.Name)
		if err != nil {
			log.Printf("Monitor: insert failed for %s: %v", raw.Link, err)
			run.ErrorsCount++
			continue
		}
		if !inserted {
			continue
		}

		added++
		log.Printf("Monitor: new listing [%s] %s (%s)", filter.Name, car.Title, car.Price.Display())

		if err := s.notifier.NewCar(car, filter.Priority); err != nil {
			// Leave the car unnotified; NotifyPending retries later.
			log.Printf("Monitor: notification failed for %s: %v", car.Link, err)
			continue
		}
		if err := s.store.MarkNotified(ctx, car.ID); err != nil {
			log.Printf("Monitor: failed to mark notified: %v", err)
		}
	}

	run.ListingsNew = added
	return added, nil
}

// NotifyPending resends notifications that failed at ingestion time. A car
// enters the recheck rotation only after its first notification lands.
func (s *MonitorService) NotifyPending(ctx context.Context) error {
	cars, err := s.store.UnnotifiedCars(ctx)
	if err != nil {
		return err
	}

	for _, car := range cars {
		if err := ctx.Err(); err != nil {
			return err
		}

		filter := s.filters[car.FilterName]
		priority := filter != nil && filter.Priority

		if err := s.notifier.NewCar(car, priority); err != nil {
			log.Printf("Monitor: retry notification failed for %s: %v", car.Link, err)
			continue
		}
		if err := s.store.MarkNotified(ctx, car.ID); err != nil {
			log.Printf("Monitor: failed to mark notified: %v", err)
		}
	}

	return nil
}

func (s *MonitorService) startRun(run *models.MonitorRun) {
	if s.recorder == nil {
		return
	}
	id, err := s.recorder.CreateMonitorRun(run)
	if err != nil {
		log.Printf("Monitor: failed to record run start: %v", err)
		return
	}
	run.ID = id
}

func (s *MonitorService) finishRun(run *models.MonitorRun, err error) {
	if s.recorder == nil || run.ID == 0 {
		return
	}

	now := time.Now()
	run.FinishedAt = &now
	run.Status = models.RunStatusCompleted
	if err != nil {
		run.Status = models.RunStatusFailed
		s.recorder.Log(&run.ID, models.LogLevelError, err.Error(), "monitor")
	}
	if err := s.recorder.UpdateMonitorRun(run); err != nil {
		log.Printf("Monitor: failed to record run finish: %v", err)
	}
}

// UnknownFilterError reports a filter name with no configuration.
type UnknownFilterError struct {
	Name string
}

func (e *UnknownFilterError) Error() string {
	return "unknown filter: " + e.Name
}
