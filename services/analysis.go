package services

import (
	"context"
	"log"
	"sort"
	"time"

	"car_scrooper/config"
	"car_scrooper/models"
)

// AnalysisStore is the slice of listing storage the reporting queries need.
type AnalysisStore interface {
	CarsWithRecentPriceChange(ctx context.Context, since time.Time) ([]*models.Car, error)
	ChangesSummary(ctx context.Context, since time.Time) (*models.ChangesSummary, error)
}

// AnalysisService produces the scheduled digests: the daily change summary
// and the weekly significant-price-drop report.
type AnalysisService struct {
	store    AnalysisStore
	notifier Notifier
	cfg      *config.AnalysisConfig
}

func NewAnalysisService(store AnalysisStore, notifier Notifier, cfg *config.AnalysisConfig) *AnalysisService {
	return &AnalysisService{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
	}
}

// SignificantDrops finds price decreases at or above the configured floor
// among cars whose price changed since the given time. Cars whose old or new
// price has no parseable euro amount are left out rather than guessed at.
func (s *AnalysisService) SignificantDrops(ctx context.Context, since time.Time) ([]models.PriceDrop, error) {
	cars, err := s.store.CarsWithRecentPriceChange(ctx, since)
	if err != nil {
		return nil, err
	}

	var drops []models.PriceDrop
	for _, car := range cars {
		if car.PreviousPrice == nil || car.PriceChangedAt == nil {
			continue
		}

		prevPrice := models.NewPrice(*car.PreviousPrice)
		drop, ok := models.DropBetween(prevPrice, car.Price)
		if !ok || drop < s.cfg.MinDropEuros {
			continue
		}

		prev, _ := prevPrice.Amount()
		drops = append(drops, models.PriceDrop{
			Car:       car,
			DropEuros: drop,
			DropPct:   float64(drop) / float64(prev) * 100,
			ChangedAt: *car.PriceChangedAt,
		})
	}

	sort.Slice(drops, func(i, j int) bool {
		return drops[i].DropEuros > drops[j].DropEuros
	})

	return drops, nil
}

// WeeklyDropsAlert sends the significant-drops report for the configured
// lookback window.
func (s *AnalysisService) WeeklyDropsAlert(ctx context.Context) error {
	since := time.Now().Add(-s.cfg.DropLookback)
	drops, err := s.SignificantDrops(ctx, since)
	if err != nil {
		return err
	}

	log.Printf("Analysis: %d significant drop(s) in the last %s", len(drops), s.cfg.DropLookback)
	return s.notifier.PriceDrops(drops, s.cfg.DropLookback)
}

// DailyDigest sends the last-24h change summary.
func (s *AnalysisService) DailyDigest(ctx context.Context) error {
	summary, err := s.store.ChangesSummary(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		return err
	}
	summary.Days = 1

	return s.notifier.DailyChanges(summary)
}
