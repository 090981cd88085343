package services

import (
	"context"
	"fmt"
	"testing"

	"car_scrooper/config"
	"car_scrooper/models"
)

func TestRunFilterInsertsAndNotifiesNew(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()
	notifier := &fakeNotifier{}

	source.scrapeResults["bmw"] = []models.RawCar{
		rawCar("https://www.bazaraki.com/adv/1_bmw/", "BMW 320d", "€18,500"),
		rawCar("https://www.bazaraki.com/adv/2_bmw/", "BMW 520i", "€9,200"),
	}

	svc := NewMonitorService(store, source, notifier,
		testConfig(&config.FilterConfig{Name: "bmw", URL: "https://example.test/bmw"}), nil)

	added, err := svc.RunFilter(context.Background(), "bmw")
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if added != 2 {
		t.Fatalf("expected 2 new cars, got %d", added)
	}
	if len(notifier.newCars) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(notifier.newCars))
	}

	car := store.byLink("https://www.bazaraki.com/adv/1_bmw/")
	if car == nil {
		t.Fatal("car not stored")
	}
	if !car.Notified || !car.EligibleForRecheck {
		t.Errorf("notified car should be marked notified and recheck-eligible")
	}
}

func TestRunFilterIsIdempotent(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()
	notifier := &fakeNotifier{}

	source.scrapeResults["bmw"] = []models.RawCar{
		rawCar("https://www.bazaraki.com/adv/1_bmw/", "BMW 320d", "€18,500"),
	}

	svc := NewMonitorService(store, source, notifier,
		testConfig(&config.FilterConfig{Name: "bmw", URL: "https://example.test/bmw"}), nil)

	if _, err := svc.RunFilter(context.Background(), "bmw"); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	added, err := svc.RunFilter(context.Background(), "bmw")
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if added != 0 {
		t.Errorf("second pass over identical results added %d cars", added)
	}
	if len(store.cars) != 1 {
		t.Errorf("expected 1 stored car, got %d", len(store.cars))
	}
	if len(notifier.newCars) != 1 {
		t.Errorf("expected 1 notification total, got %d", len(notifier.newCars))
	}

	// Second scrape must have received the stored link as known.
	if !source.knownSeen["bmw"]["https://www.bazaraki.com/adv/1_bmw/"] {
		t.Error("known links not passed to the second scrape")
	}
}

func TestRunAllPriorityFiltersFirst(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()
	notifier := &fakeNotifier{}

	cfg := testConfig(
		&config.FilterConfig{Name: "audi", URL: "https://example.test/audi"},
		&config.FilterConfig{Name: "bmw", URL: "https://example.test/bmw", Priority: true},
		&config.FilterConfig{Name: "mercedes", URL: "https://example.test/mercedes"},
	)

	svc := NewMonitorService(store, source, notifier, cfg, nil)
	if err := svc.RunAll(context.Background()); err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}

	if len(source.scrapedFilters) != 3 || source.scrapedFilters[0] != "bmw" {
		t.Errorf("priority filter not scraped first: %v", source.scrapedFilters)
	}
}

func TestRunAllSendsPrioritySubsetSummary(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()
	notifier := &fakeNotifier{}

	source.scrapeResults["bmw"] = []models.RawCar{
		rawCar("https://www.bazaraki.com/adv/1_bmw/", "BMW 320d", "€18,500"),
	}
	source.scrapeResults["audi"] = []models.RawCar{
		rawCar("https://www.bazaraki.com/adv/2_audi/", "Audi A4", "€14,000"),
	}

	cfg := testConfig(
		&config.FilterConfig{Name: "audi", URL: "https://example.test/audi"},
		&config.FilterConfig{Name: "bmw", URL: "https://example.test/bmw", Priority: true},
	)

	svc := NewMonitorService(store, source, notifier, cfg, nil)
	if err := svc.RunAll(context.Background()); err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}

	if len(notifier.prioritySummaries) != 1 {
		t.Fatalf("expected 1 priority summary, got %d", len(notifier.prioritySummaries))
	}
	priority := notifier.prioritySummaries[0]
	if priority["bmw"] != 1 {
		t.Errorf("priority summary should report the bmw insert: %v", priority)
	}
	if _, ok := priority["audi"]; ok {
		t.Errorf("priority summary must cover the priority subset only: %v", priority)
	}

	// The priority aggregate goes out before the regular filters run: at
	// that point only the priority filter had been scraped.
	if len(source.scrapedFilters) != 2 || source.scrapedFilters[0] != "bmw" {
		t.Fatalf("unexpected scrape order: %v", source.scrapedFilters)
	}

	if len(notifier.monitorTotals) != 1 {
		t.Fatalf("expected 1 overall summary, got %d", len(notifier.monitorTotals))
	}
	if notifier.monitorTotals[0]["bmw"] != 1 || notifier.monitorTotals[0]["audi"] != 1 {
		t.Errorf("overall summary should cover every filter: %v", notifier.monitorTotals[0])
	}
}

func TestRunAllIsolatesFilterFailure(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()
	notifier := &fakeNotifier{}

	source.scrapeErrs["bmw"] = fmt.Errorf("cloudflare wall")
	source.scrapeResults["audi"] = []models.RawCar{
		rawCar("https://www.bazaraki.com/adv/9_audi/", "Audi A4", "€14,000"),
	}

	cfg := testConfig(
		&config.FilterConfig{Name: "bmw", URL: "https://example.test/bmw"},
		&config.FilterConfig{Name: "audi", URL: "https://example.test/audi"},
	)

	svc := NewMonitorService(store, source, notifier, cfg, nil)
	if err := svc.RunAll(context.Background()); err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}

	if store.byLink("https://www.bazaraki.com/adv/9_audi/") == nil {
		t.Error("healthy filter should still be processed after another filter fails")
	}
	if len(notifier.monitorTotals) != 1 {
		t.Fatalf("expected 1 monitor summary, got %d", len(notifier.monitorTotals))
	}
	if notifier.monitorTotals[0]["audi"] != 1 {
		t.Errorf("summary should report the audi insert: %v", notifier.monitorTotals[0])
	}
}

func TestNotificationFailureRetriedByNotifyPending(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()
	notifier := &fakeNotifier{failNewCar: true}

	source.scrapeResults["bmw"] = []models.RawCar{
		rawCar("https://www.bazaraki.com/adv/1_bmw/", "BMW 320d", "€18,500"),
	}

	svc := NewMonitorService(store, source, notifier,
		testConfig(&config.FilterConfig{Name: "bmw", URL: "https://example.test/bmw"}), nil)

	if _, err := svc.RunFilter(context.Background(), "bmw"); err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}

	car := store.byLink("https://www.bazaraki.com/adv/1_bmw/")
	if car.Notified || car.EligibleForRecheck {
		t.Fatal("car must stay unnotified when delivery fails")
	}

	notifier.failNewCar = false
	if err := svc.NotifyPending(context.Background()); err != nil {
		t.Fatalf("NotifyPending failed: %v", err)
	}
	if !car.Notified || !car.EligibleForRecheck {
		t.Error("retry should mark the car notified and recheck-eligible")
	}
}

func TestRunFilterUnknownName(t *testing.T) {
	svc := NewMonitorService(newFakeStore(), newFakeSource(), &fakeNotifier{}, testConfig(), nil)
	if _, err := svc.RunFilter(context.Background(), "tesla"); err == nil {
		t.Fatal("expected an error for an unconfigured filter")
	}
}
