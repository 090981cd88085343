package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"car_scrooper/config"
	"car_scrooper/models"
	"car_scrooper/scraper"
)

// fakeStore is an in-memory stand-in for the Postgres store, honoring the
// same link-dedup and recheck-selection semantics.
type fakeStore struct {
	mu     sync.Mutex
	cars   map[int64]*models.Car
	nextID int64

	insertErr error
	queryErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{cars: make(map[int64]*models.Car)}
}

func (f *fakeStore) add(car *models.Car) *models.Car {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	car.ID = f.nextID
	if car.CreatedAt.IsZero() {
		car.CreatedAt = time.Now()
	}
	f.cars[car.ID] = car
	return car
}

func (f *fakeStore) byLink(link string) *models.Car {
	for _, car := range f.cars {
		if car.Link == link {
			return car
		}
	}
	return nil
}

func (f *fakeStore) ExistingLinks(_ context.Context, filterName string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	links := make(map[string]bool)
	for _, car := range f.cars {
		if car.FilterName == filterName {
			links[car.Link] = true
		}
	}
	return links, nil
}

func (f *fakeStore) ExistsByLink(_ context.Context, link string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byLink(link) != nil, nil
}

func (f *fakeStore) InsertCar(_ context.Context, raw *models.RawCar, filterName string) (*models.Car, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, false, f.insertErr
	}
	if existing := f.byLink(raw.Link); existing != nil {
		return existing, false, nil
	}

	f.nextID++
	car := &models.Car{
		ID:          f.nextID,
		Title:       raw.Title,
		Link:        raw.Link,
		Price:       models.NewPrice(raw.Price),
		Brand:       raw.Brand,
		Year:        raw.Year,
		Mileage:     raw.Mileage,
		Features:    raw.Features,
		Description: raw.Description,
		DatePosted:  raw.DatePosted,
		Place:       raw.Place,
		FilterName:  filterName,
		Available:   true,
		CreatedAt:   time.Now(),
	}
	f.cars[car.ID] = car
	return car, true, nil
}

func (f *fakeStore) MarkNotified(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	car, ok := f.cars[id]
	if !ok {
		return fmt.Errorf("no car %d", id)
	}
	car.Notified = true
	car.EligibleForRecheck = true
	return nil
}

func (f *fakeStore) UnnotifiedCars(_ context.Context) ([]*models.Car, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Car
	for _, car := range f.cars {
		if !car.Notified {
			out = append(out, car)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) CarsNeedingRecheck(_ context.Context, cutoff time.Time, unavailableExpiry time.Duration, limit int) ([]*models.Car, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}

	var out []*models.Car
	for _, car := range f.cars {
		if !car.EligibleForRecheck {
			continue
		}
		if car.LastCheckedAt != nil && !car.LastCheckedAt.Before(cutoff) {
			continue
		}
		if !car.Available && unavailableExpiry > 0 && car.UnavailableSince != nil &&
			!car.UnavailableSince.After(time.Now().Add(-unavailableExpiry)) {
			continue
		}
		out = append(out, car)
	}

	// nil last_checked_at sorts first, then oldest check first.
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastCheckedAt, out[j].LastCheckedAt
		if a == nil {
			return b != nil || out[i].ID < out[j].ID
		}
		if b == nil {
			return false
		}
		return a.Before(*b)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) GetCarsByIDs(_ context.Context, ids []int64) ([]*models.Car, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Car
	for _, id := range ids {
		if car, ok := f.cars[id]; ok {
			out = append(out, car)
		}
	}
	return out, nil
}

func (f *fakeStore) RecordPriceChange(_ context.Context, id int64, oldPrice, newPrice string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	car, ok := f.cars[id]
	if !ok {
		return fmt.Errorf("no car %d", id)
	}
	now := time.Now()
	car.PreviousPrice = &oldPrice
	car.Price = models.NewPrice(newPrice)
	car.PriceChangedAt = &now
	car.PriceChanges++
	return nil
}

func (f *fakeStore) RecordDescriptionChange(_ context.Context, id int64, oldDescription, newDescription string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	car, ok := f.cars[id]
	if !ok {
		return fmt.Errorf("no car %d", id)
	}
	now := time.Now()
	car.PreviousDescription = &oldDescription
	car.Description = &newDescription
	car.DescriptionChangedAt = &now
	car.DescriptionChanges++
	return nil
}

func (f *fakeStore) TouchLastChecked(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	car, ok := f.cars[id]
	if !ok {
		return fmt.Errorf("no car %d", id)
	}
	now := time.Now()
	car.LastCheckedAt = &now
	return nil
}

func (f *fakeStore) MarkUnavailable(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	car, ok := f.cars[id]
	if !ok {
		return fmt.Errorf("no car %d", id)
	}
	car.Available = false
	if car.UnavailableSince == nil {
		now := time.Now()
		car.UnavailableSince = &now
	}
	return nil
}

func (f *fakeStore) CarsWithRecentPriceChange(_ context.Context, since time.Time) ([]*models.Car, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Car
	for _, car := range f.cars {
		if car.PriceChangedAt != nil && car.PriceChangedAt.After(since) {
			out = append(out, car)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ChangesSummary(_ context.Context, since time.Time) (*models.ChangesSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	summary := &models.ChangesSummary{}
	for _, car := range f.cars {
		if car.PriceChangedAt != nil && car.PriceChangedAt.After(since) {
			summary.PriceChanges++
		}
		if car.DescriptionChangedAt != nil && car.DescriptionChangedAt.After(since) {
			summary.DescriptionChanges++
		}
		if car.UnavailableSince != nil && car.UnavailableSince.After(since) {
			summary.Unavailable++
		}
	}
	return summary, nil
}

// fakeSource scripts scrape and refetch outcomes per filter and per link.
type fakeSource struct {
	mu sync.Mutex

	scrapeResults map[string][]models.RawCar
	scrapeErrs    map[string]error
	snapshots     map[string]*models.CarSnapshot
	refetchErrs   map[string]error
	gone          map[string]bool

	scrapedFilters []string
	knownSeen      map[string]map[string]bool
	refetched      []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		scrapeResults: make(map[string][]models.RawCar),
		scrapeErrs:    make(map[string]error),
		snapshots:     make(map[string]*models.CarSnapshot),
		refetchErrs:   make(map[string]error),
		gone:          make(map[string]bool),
		knownSeen:     make(map[string]map[string]bool),
	}
}

func (f *fakeSource) Scrape(_ context.Context, filter *config.FilterConfig, knownLinks map[string]bool) ([]models.RawCar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrapedFilters = append(f.scrapedFilters, filter.Name)
	f.knownSeen[filter.Name] = knownLinks
	if err := f.scrapeErrs[filter.Name]; err != nil {
		return nil, err
	}
	return f.scrapeResults[filter.Name], nil
}

func (f *fakeSource) Refetch(_ context.Context, link string) (*models.CarSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refetched = append(f.refetched, link)
	if f.gone[link] {
		return nil, scraper.ErrListingGone
	}
	if err := f.refetchErrs[link]; err != nil {
		return nil, err
	}
	if snap, ok := f.snapshots[link]; ok {
		return snap, nil
	}
	return &models.CarSnapshot{}, nil
}

// fakeNotifier records every delivery; failNewCar simulates a dead channel.
type fakeNotifier struct {
	mu sync.Mutex

	failNewCar bool

	newCars           []string
	changed           []*models.ChangeSet
	unavailable       []string
	checkSummaries    []*models.CheckSummary
	dailySummaries    []*models.ChangesSummary
	drops             [][]models.PriceDrop
	prioritySummaries []map[string]int
	monitorTotals     []map[string]int
}

func (f *fakeNotifier) NewCar(car *models.Car, priority bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNewCar {
		return fmt.Errorf("notifier down")
	}
	f.newCars = append(f.newCars, car.Link)
	return nil
}

func (f *fakeNotifier) CarChanged(car *models.Car, changes *models.ChangeSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changed = append(f.changed, changes)
	return nil
}

func (f *fakeNotifier) CarUnavailable(car *models.Car) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unavailable = append(f.unavailable, car.Link)
	return nil
}

func (f *fakeNotifier) CheckSummary(summary *models.CheckSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkSummaries = append(f.checkSummaries, summary)
	return nil
}

func (f *fakeNotifier) DailyChanges(summary *models.ChangesSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dailySummaries = append(f.dailySummaries, summary)
	return nil
}

func (f *fakeNotifier) PriceDrops(drops []models.PriceDrop, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drops = append(f.drops, drops)
	return nil
}

func (f *fakeNotifier) PrioritySummary(newByFilter map[string]int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prioritySummaries = append(f.prioritySummaries, newByFilter)
	return nil
}

func (f *fakeNotifier) MonitorSummary(newByFilter map[string]int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monitorTotals = append(f.monitorTotals, newByFilter)
	return nil
}

func rawCar(link, title, price string) models.RawCar {
	return models.RawCar{Title: title, Link: link, Price: price}
}

func testConfig(filters ...*config.FilterConfig) *config.Config {
	cfg := &config.Config{Filters: make(map[string]*config.FilterConfig)}
	for _, f := range filters {
		cfg.Filters[f.Name] = f
	}
	return cfg
}
