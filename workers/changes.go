package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"car_scrooper/models"
	"car_scrooper/services"
)

// ChangesWorker drives the change-detection engine on an interval, with a
// manual trigger channel for on-demand passes.
type ChangesWorker struct {
	changes   *services.ChangesService
	triggerCh chan struct{}
	logFunc   LogFunc
}

func NewChangesWorker(changes *services.ChangesService) *ChangesWorker {
	return &ChangesWorker{
		changes:   changes,
		triggerCh: make(chan struct{}, 1),
		logFunc:   NoOpLogger,
	}
}

func (w *ChangesWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// Trigger causes the worker to run a pass immediately
func (w *ChangesWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Run starts the changes worker loop
func (w *ChangesWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Changes worker stopping")
			return
		case <-ticker.C:
			w.runPass(ctx)
		case <-w.triggerCh:
			log.Println("Changes worker triggered manually")
			w.runPass(ctx)
		}
	}
}

func (w *ChangesWorker) runPass(ctx context.Context) {
	summary, err := w.changes.CheckAllCars(ctx)
	if err != nil {
		log.Printf("Changes worker: pass failed: %v", err)
		w.logFunc(models.LogLevelError, "changes", err.Error())
		return
	}

	if summary.Checked == 0 {
		return
	}

	msg := fmt.Sprintf("Checked %d cars", summary.Checked)
	if summary.PriceChanges > 0 {
		msg += fmt.Sprintf(", %d price changes", summary.PriceChanges)
	}
	if summary.DescriptionChanges > 0 {
		msg += fmt.Sprintf(", %d description changes", summary.DescriptionChanges)
	}
	if summary.Unavailable > 0 {
		msg += fmt.Sprintf(", %d gone", summary.Unavailable)
	}
	if summary.Errors > 0 {
		msg += fmt.Sprintf(", %d errors", summary.Errors)
	}
	log.Printf("Changes worker: %s in %.0fs", msg, summary.Elapsed().Seconds())
	w.logFunc(models.LogLevelInfo, "changes", msg)
}
