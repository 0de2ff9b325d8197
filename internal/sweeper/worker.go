package sweeper

import (
	"context"
	"time"

	"taskops/internal/cache"
	"taskops/internal/model"
	"taskops/internal/taskerr"
	"taskops/internal/ws"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const lockKey = "taskops:sweeper:lock"

// Worker periodically demotes stale task errors to regressed. A redis
// lock keeps multiple replicas from sweeping the same interval.
type Worker struct {
	ctx       context.Context
	cancel    context.CancelFunc
	db        *gorm.DB
	store     *taskerr.Store
	logger    *logrus.Entry
	interval  time.Duration
	staleness time.Duration
}

// Config holds the configuration for the sweeper worker
type Config struct {
	DB           *gorm.DB
	Store        *taskerr.Store
	Logger       *logrus.Entry
	IntervalSec  int
	StalenessSec int
}

// NewWorker creates a regression sweeper worker
func NewWorker(cfg *Config) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	interval := time.Duration(cfg.IntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	staleness := time.Duration(cfg.StalenessSec) * time.Second
	if staleness <= 0 {
		staleness = time.Minute
	}

	return &Worker{
		ctx:       ctx,
		cancel:    cancel,
		db:        cfg.DB,
		store:     cfg.Store,
		logger:    cfg.Logger.WithField("component", "sweeper"),
		interval:  interval,
		staleness: staleness,
	}
}

// Start begins the periodic sweep
func (w *Worker) Start() {
	w.logger.Infof("Starting regression sweeper with interval %s", w.interval)

	// Run once at startup
	go w.runSweep()

	ticker := time.NewTicker(w.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.runSweep()
			case <-w.ctx.Done():
				w.logger.Info("Stopping regression sweeper...")
				return
			}
		}
	}()
}

// Stop stops the worker
func (w *Worker) Stop() {
	w.cancel()
}

func (w *Worker) runSweep() {
	locked, err := cache.AcquireLock(w.ctx, lockKey, w.interval)
	if err != nil {
		w.logger.Warnf("Failed to acquire sweep lock: %v", err)
		return
	}
	if !locked {
		w.logger.Debug("Another replica holds the sweep lock, skipping")
		return
	}
	defer cache.ReleaseLock(w.ctx, lockKey)

	var tasks []model.Task
	if err := w.db.Where("is_active = ?", true).Find(&tasks).Error; err != nil {
		w.logger.Errorf("Failed to list active tasks: %v", err)
		return
	}

	now := time.Now()
	var totalSwept int64
	for _, task := range tasks {
		swept, err := w.store.SweepRegressions(task.ID, now, w.staleness)
		if err != nil {
			w.logger.Errorf("Sweep failed for task %s: %v", task.Name, err)
			continue
		}
		if swept > 0 {
			w.logger.Infof("Task %s: %d errors regressed", task.Name, swept)
			ws.PublishTaskErrorEvent(ws.EventRegressed, map[string]interface{}{
				"task_id":   task.ID,
				"task_name": task.Name,
				"count":     swept,
			})
			totalSwept += swept
		}
	}

	if totalSwept > 0 {
		w.logger.Infof("Sweep completed: %d errors regressed across %d tasks", totalSwept, len(tasks))
	}
}
