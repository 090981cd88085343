package services

import (
	"context"
	"testing"
	"time"

	"car_scrooper/config"
	"car_scrooper/models"
)

func analysisConfig() *config.AnalysisConfig {
	return &config.AnalysisConfig{
		DropLookback: 7 * 24 * time.Hour,
		MinDropEuros: 1000,
	}
}

func droppedCar(store *fakeStore, link, prevPrice, curPrice string, changedAgo time.Duration) *models.Car {
	changed := time.Now().Add(-changedAgo)
	return store.add(&models.Car{
		Title:          "Car " + link,
		Link:           link,
		Price:          models.NewPrice(curPrice),
		PreviousPrice:  &prevPrice,
		PriceChangedAt: &changed,
		Available:      true,
	})
}

func TestSignificantDrops(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}

	big := droppedCar(store, "https://www.bazaraki.com/adv/1_big/", "€20,000", "€17,000", time.Hour)
	small := droppedCar(store, "https://www.bazaraki.com/adv/2_small/", "€10,000", "€9,500", time.Hour)
	medium := droppedCar(store, "https://www.bazaraki.com/adv/3_medium/", "€12,500", "€11,000", time.Hour)
	unparseable := droppedCar(store, "https://www.bazaraki.com/adv/4_ask/", "€9,000", "Price on request", time.Hour)
	increase := droppedCar(store, "https://www.bazaraki.com/adv/5_up/", "€8,000", "€9,000", time.Hour)
	old := droppedCar(store, "https://www.bazaraki.com/adv/6_old/", "€30,000", "€20,000", 30*24*time.Hour)

	svc := NewAnalysisService(store, notifier, analysisConfig())
	drops, err := svc.SignificantDrops(context.Background(), time.Now().Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("SignificantDrops failed: %v", err)
	}

	// Only the two drops of at least €1000 inside the window qualify,
	// largest first.
	if len(drops) != 2 {
		t.Fatalf("expected 2 drops, got %d", len(drops))
	}
	if drops[0].Car.ID != big.ID || drops[0].DropEuros != 3000 {
		t.Errorf("first drop wrong: car %d, €%d", drops[0].Car.ID, drops[0].DropEuros)
	}
	if drops[1].Car.ID != medium.ID || drops[1].DropEuros != 1500 {
		t.Errorf("second drop wrong: car %d, €%d", drops[1].Car.ID, drops[1].DropEuros)
	}
	if drops[0].DropPct < 14.9 || drops[0].DropPct > 15.1 {
		t.Errorf("drop percentage off: %.2f", drops[0].DropPct)
	}

	for _, d := range drops {
		if d.Car.ID == small.ID || d.Car.ID == unparseable.ID || d.Car.ID == increase.ID || d.Car.ID == old.ID {
			t.Errorf("car %d should have been excluded", d.Car.ID)
		}
	}
}

func TestWeeklyDropsAlertSendsReport(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	droppedCar(store, "https://www.bazaraki.com/adv/1_big/", "€20,000", "€17,000", time.Hour)

	svc := NewAnalysisService(store, notifier, analysisConfig())
	if err := svc.WeeklyDropsAlert(context.Background()); err != nil {
		t.Fatalf("WeeklyDropsAlert failed: %v", err)
	}

	if len(notifier.drops) != 1 || len(notifier.drops[0]) != 1 {
		t.Fatalf("expected one report with one drop, got %v", notifier.drops)
	}
}

func TestDailyDigest(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	droppedCar(store, "https://www.bazaraki.com/adv/1_big/", "€20,000", "€17,000", time.Hour)

	svc := NewAnalysisService(store, notifier, analysisConfig())
	if err := svc.DailyDigest(context.Background()); err != nil {
		t.Fatalf("DailyDigest failed: %v", err)
	}

	if len(notifier.dailySummaries) != 1 {
		t.Fatalf("expected one daily summary, got %d", len(notifier.dailySummaries))
	}
	got := notifier.dailySummaries[0]
	if got.Days != 1 || got.PriceChanges != 1 {
		t.Errorf("unexpected summary: %+v", got)
	}
}
