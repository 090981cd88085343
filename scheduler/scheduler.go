package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"car_scrooper/config"
	"car_scrooper/models"
	"car_scrooper/services"
	"car_scrooper/storage"
)

// Triggerable allows workers to be triggered manually
type Triggerable interface {
	Trigger()
}

// Pausable lets the scheduler suspend a self-ticking worker.
type Pausable interface {
	SetPaused(bool)
}

// Scheduler owns the cron jobs and the command queue. The periodic engines
// themselves run as workers; the scheduler only fires their triggers.
type Scheduler struct {
	cfg      *config.Config
	store    *storage.SQLiteStore
	monitor  *services.MonitorService
	changes  *services.ChangesService
	analysis *services.AnalysisService
	cron     *cron.Cron
	stopCh   chan struct{}

	// Written by the command poller, read from cron's goroutine.
	paused atomic.Bool

	monitorWorker interface {
		Triggerable
		Pausable
	}
	changesWorker Triggerable
}

func New(cfg *config.Config, store *storage.SQLiteStore, monitor *services.MonitorService, changes *services.ChangesService, analysis *services.AnalysisService) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		store:    store,
		monitor:  monitor,
		changes:  changes,
		analysis: analysis,
		cron:     cron.New(),
		stopCh:   make(chan struct{}),
	}
}

// SetWorkers registers the background workers for triggering and pausing.
func (s *Scheduler) SetWorkers(monitor interface {
	Triggerable
	Pausable
}, changes Triggerable) {
	s.monitorWorker = monitor
	s.changesWorker = changes
}

func (s *Scheduler) Start(ctx context.Context) error {
	go s.pollCommands(ctx)

	if s.cfg.Changes.Cron != "" {
		log.Printf("Scheduling daily change check: %s", s.cfg.Changes.Cron)
		_, err := s.cron.AddFunc(s.cfg.Changes.Cron, func() {
			if s.paused.Load() {
				return
			}
			if s.changesWorker != nil {
				s.changesWorker.Trigger()
			}
		})
		if err != nil {
			return fmt.Errorf("invalid changes cron expression: %w", err)
		}
	}

	if s.cfg.Analysis.DigestCron != "" {
		log.Printf("Scheduling daily digest: %s", s.cfg.Analysis.DigestCron)
		_, err := s.cron.AddFunc(s.cfg.Analysis.DigestCron, func() {
			if s.paused.Load() {
				return
			}
			if err := s.analysis.DailyDigest(ctx); err != nil {
				log.Printf("Daily digest error: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid digest cron expression: %w", err)
		}
	}

	if s.cfg.Analysis.DropsCron != "" {
		log.Printf("Scheduling weekly drops alert: %s", s.cfg.Analysis.DropsCron)
		_, err := s.cron.AddFunc(s.cfg.Analysis.DropsCron, func() {
			if s.paused.Load() {
				return
			}
			if err := s.analysis.WeeklyDropsAlert(ctx); err != nil {
				log.Printf("Weekly drops alert error: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid drops cron expression: %w", err)
		}
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	close(s.stopCh)
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cmds, err := s.store.GetPendingCommands()
			if err != nil {
				log.Printf("Error getting commands: %v", err)
				continue
			}

			for _, cmd := range cmds {
				log.Printf("Processing command: %s", cmd.Command)
				if err := s.handleCommand(ctx, &cmd); err != nil {
					log.Printf("Command error: %v", err)
				}
				if err := s.store.MarkCommandProcessed(cmd.ID); err != nil {
					log.Printf("Error marking command processed: %v", err)
				}
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	params, err := s.store.ParseCommandParams(cmd)
	if err != nil {
		return fmt.Errorf("bad command params: %w", err)
	}

	switch cmd.Command {
	case models.CmdMonitorNow:
		if params.Filter != "" {
			added, err := s.monitor.RunFilter(ctx, params.Filter)
			if err != nil {
				return err
			}
			log.Printf("Manual monitor of %s: %d new", params.Filter, added)
			return nil
		}
		if s.monitorWorker != nil {
			s.monitorWorker.Trigger()
		}
		return nil

	case models.CmdCheckNow:
		if s.changesWorker != nil {
			s.changesWorker.Trigger()
		}
		return nil

	case models.CmdCheckCars:
		if len(params.CarIDs) == 0 {
			return fmt.Errorf("check_cars needs car ids")
		}
		summary, err := s.changes.CheckCars(ctx, params.CarIDs)
		if err != nil {
			return err
		}
		log.Printf("Targeted check of %d cars: %d changed", summary.Checked, summary.Changed)
		return nil

	case models.CmdDropsAlert:
		return s.analysis.WeeklyDropsAlert(ctx)

	case models.CmdPause:
		s.paused.Store(true)
		if s.monitorWorker != nil {
			s.monitorWorker.SetPaused(true)
		}
		log.Println("Scheduler paused")
		return nil

	case models.CmdResume:
		s.paused.Store(false)
		if s.monitorWorker != nil {
			s.monitorWorker.SetPaused(false)
		}
		log.Println("Scheduler resumed")
		return nil

	default:
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}
}
