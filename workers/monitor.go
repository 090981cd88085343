package workers

import (
	"context"
	"log"
	"math/rand"
	"sync/atomic"
	"time"

	"car_scrooper/config"
	"car_scrooper/models"
	"car_scrooper/services"
)

// MonitorWorker drives the ingestion engine on a jittered interval. Passes
// are skipped inside the configured night window; a manual trigger bypasses
// both the timer and the pause.
type MonitorWorker struct {
	monitor   *services.MonitorService
	cfg       *config.MonitorConfig
	triggerCh chan struct{}
	logFunc   LogFunc
	paused    atomic.Bool

	// now is swappable so the night-pause logic is testable.
	now func() time.Time
}

func NewMonitorWorker(monitor *services.MonitorService, cfg *config.MonitorConfig) *MonitorWorker {
	return &MonitorWorker{
		monitor:   monitor,
		cfg:       cfg,
		triggerCh: make(chan struct{}, 1),
		logFunc:   NoOpLogger,
		now:       time.Now,
	}
}

func (w *MonitorWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// SetPaused suspends scheduled passes. Manual triggers still run.
func (w *MonitorWorker) SetPaused(paused bool) {
	w.paused.Store(paused)
}

// Trigger causes the worker to run a pass immediately
func (w *MonitorWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Run starts the monitor worker loop. Notifications that failed in earlier
// sessions are retried once at startup before the first pass.
func (w *MonitorWorker) Run(ctx context.Context) {
	if err := w.monitor.NotifyPending(ctx); err != nil {
		log.Printf("Monitor worker: pending notifications failed: %v", err)
	}

	timer := time.NewTimer(w.nextInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Monitor worker stopping")
			return
		case <-timer.C:
			switch {
			case w.paused.Load():
				log.Println("Monitor worker: paused, skipping pass")
			case w.inNightPause():
				log.Println("Monitor worker: night pause, skipping pass")
			default:
				w.runPass(ctx)
			}
			timer.Reset(w.nextInterval())
		case <-w.triggerCh:
			log.Println("Monitor worker triggered manually")
			w.runPass(ctx)
		}
	}
}

func (w *MonitorWorker) runPass(ctx context.Context) {
	if err := w.monitor.RunAll(ctx); err != nil {
		log.Printf("Monitor worker: pass failed: %v", err)
		w.logFunc(models.LogLevelError, "monitor", err.Error())
	}
}

// nextInterval returns the base interval shifted by a uniform jitter of up
// to ±half the configured jitter span.
func (w *MonitorWorker) nextInterval() time.Duration {
	interval := w.cfg.Interval
	if w.cfg.Jitter > 0 {
		interval += time.Duration(rand.Int63n(int64(w.cfg.Jitter))) - w.cfg.Jitter/2
	}
	if interval < time.Minute {
		interval = time.Minute
	}
	return interval
}

// inNightPause reports whether the current hour falls inside the configured
// quiet window. The window may wrap midnight (from 23 to 5).
func (w *MonitorWorker) inNightPause() bool {
	from, to := w.cfg.NightPauseFrom, w.cfg.NightPauseTo
	if from == to {
		return false
	}

	hour := w.now().Hour()
	if from < to {
		return hour >= from && hour < to
	}
	return hour >= from || hour < to
}
