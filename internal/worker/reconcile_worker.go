package worker

import (
	"fmt"
	"time"

	"github.com/finsight/scripts-backend/config"
	"github.com/finsight/scripts-backend/pkg/logger"
	"github.com/robfig/cron/v3"
)

// TaskFunc defines the function signature for periodic maintenance operations
type TaskFunc func() error

// ReconcileWorker periodically recomputes the cached rating aggregates so a
// lost update from concurrent rating submissions never persists for long
type ReconcileWorker struct {
	name     string
	cron     *cron.Cron
	task     TaskFunc
	interval time.Duration
	logger   *logger.Logger
	entryID  cron.EntryID
}

// NewReconcileWorker creates a cron-scheduled worker with validation and defaults
func NewReconcileWorker(cfg *config.WorkerConfig, name string, task TaskFunc, logger *logger.Logger) (*ReconcileWorker, error) {
	// Set defaults for nil or empty config values
	var interval time.Duration = 5 * time.Minute
	if cfg != nil && cfg.ReconcileInterval != "" {
		duration, err := time.ParseDuration(cfg.ReconcileInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid reconcile interval '%s': %v", cfg.ReconcileInterval, err)
		}
		interval = duration
	}

	return &ReconcileWorker{
		name:     name,
		cron:     cron.New(),
		task:     task,
		interval: interval,
		logger:   logger.WithComponent("reconcile-worker"),
	}, nil
}

// Start schedules and begins the reconcile worker
func (w *ReconcileWorker) Start() error {
	intervalStr := w.durationToCronExpression(w.interval)
	w.logger.Info(fmt.Sprintf("Starting reconcile worker: %s (every %v)", w.name, w.interval))

	entryID, err := w.cron.AddFunc(intervalStr, func() {
		w.logger.Debug("Executing reconcile operation for worker: " + w.name)

		if err := w.task(); err != nil {
			w.logger.Error("Reconcile operation failed for worker " + w.name + ": " + err.Error())
		}
	})

	if err != nil {
		w.logger.Error("Failed to schedule reconcile worker " + w.name + ": " + err.Error())
		return err
	}

	w.entryID = entryID
	w.cron.Start()

	w.logger.Info("Reconcile worker started successfully: " + w.name)

	return nil
}

// Stop gracefully shuts down the reconcile worker
func (w *ReconcileWorker) Stop() error {
	w.logger.Info("Stopping reconcile worker: " + w.name)

	// Remove the scheduled entry
	if w.entryID > 0 {
		w.cron.Remove(w.entryID)
	}

	ctx := w.cron.Stop()
	<-ctx.Done() // Wait for graceful shutdown

	w.logger.Info("Reconcile worker stopped: " + w.name)

	return nil
}

// IsRunning checks if the worker has active cron entries
func (w *ReconcileWorker) IsRunning() bool {
	return len(w.cron.Entries()) > 0
}

// durationToCronExpression converts duration to cron format with fallback
func (w *ReconcileWorker) durationToCronExpression(duration time.Duration) string {
	minutes := int(duration.Minutes())
	hours := int(duration.Hours())

	if hours > 0 && minutes%60 == 0 {
		return fmt.Sprintf("0 */%d * * *", hours)
	} else if minutes > 0 && minutes < 60 {
		return fmt.Sprintf("*/%d * * * *", minutes)
	}

	// Fallback for unsupported durations
	w.logger.Warn(fmt.Sprintf("Unsupported reconcile interval %v, defaulting to 5 minutes", duration))
	return "*/5 * * * *"
}
