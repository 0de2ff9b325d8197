package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"taskops/internal/model"
	"taskops/internal/notifier"
	"taskops/internal/taskerr"
	"taskops/internal/ws"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TaskFunc is the unit of work executed under lifecycle bookkeeping.
// It returns a structured result payload on success. Failures should be
// returned as *taskerr.Failure so the error record carries an explicit
// source attribution.
type TaskFunc func(ctx context.Context) (map[string]interface{}, error)

// Service records run outcomes for tasks: start/success/error state on
// the task row, deduplicated error records, regression sweeps after
// successful runs, and error notifications.
type Service struct {
	db        *gorm.DB
	store     *taskerr.Store
	notifier  *notifier.Client
	logger    *logrus.Entry
	staleness time.Duration
}

// Config holds the configuration for the lifecycle service
type Config struct {
	DB           *gorm.DB
	Store        *taskerr.Store
	Notifier     *notifier.Client
	Logger       *logrus.Entry
	StalenessSec int
}

// NewService creates a lifecycle service
func NewService(cfg *Config) *Service {
	staleness := time.Duration(cfg.StalenessSec) * time.Second
	if staleness <= 0 {
		staleness = time.Minute
	}

	return &Service{
		db:        cfg.DB,
		store:     cfg.Store,
		notifier:  cfg.Notifier,
		logger:    cfg.Logger.WithField("component", "lifecycle"),
		staleness: staleness,
	}
}

// GetActiveTask returns the active task with the given name, or nil
// when the task is unknown or disabled
func (s *Service) GetActiveTask(name string) (*model.Task, error) {
	var task model.Task
	err := s.db.Where("name = ? AND is_active = ?", name, true).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Warnf("No active task configuration found for %s", name)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up task %s: %w", name, err)
	}
	return &task, nil
}

// HandleStart records that a task run has begun
func (s *Service) HandleStart(task *model.Task) error {
	now := time.Now()
	result, _ := json.Marshal(map[string]interface{}{
		"message": "Task started",
		"status":  "running",
	})

	err := s.db.Model(task).Updates(map[string]interface{}{
		"last_run":    now,
		"last_status": "",
		"last_result": result,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to record task start for %s: %w", task.Name, err)
	}
	return nil
}

// HandleSuccess records a successful run, then demotes errors that did
// not recur to regressed
func (s *Service) HandleSuccess(task *model.Task, result map[string]interface{}) error {
	now := time.Now()

	if result == nil {
		result = map[string]interface{}{}
	}
	result["status"] = "success"
	result["completed_at"] = now.Format(time.RFC3339)

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result for %s: %w", task.Name, err)
	}

	err = s.db.Model(task).Updates(map[string]interface{}{
		"last_status": model.TaskRunStatusSuccess,
		"last_result": payload,
		"last_error":  "",
		"last_run":    now,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to record task success for %s: %w", task.Name, err)
	}

	swept, err := s.store.SweepRegressions(task.ID, now, s.staleness)
	if err != nil {
		return err
	}
	if swept > 0 {
		s.logger.Infof("Task %s: %d errors regressed", task.Name, swept)
		ws.PublishTaskErrorEvent(ws.EventRegressed, map[string]interface{}{
			"task_id":   task.ID,
			"task_name": task.Name,
			"count":     swept,
		})
	}

	return nil
}

// HandleError records a failed run: task state, the deduplicated error
// record, optional disable, and optional notification
func (s *Service) HandleError(ctx context.Context, task *model.Task, ec taskerr.ErrorContext) error {
	errorMessage := fmt.Sprintf("Error in task %s: %s", task.Name, ec.Message)
	s.logger.WithField("task", task.Name).Error(errorMessage)

	updates := map[string]interface{}{
		"last_status": model.TaskRunStatusError,
		"last_error":  errorMessage,
	}
	if task.DisableOnError {
		s.logger.Infof("Disabling task %s due to error", task.Name)
		updates["is_active"] = false
	}

	if err := s.db.Model(task).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to record task error for %s: %w", task.Name, err)
	}

	record, err := s.store.RecordFailure(task.ID, ec)
	if err != nil {
		return err
	}
	s.logger.WithField("task", task.Name).Infof("Recorded failure: %s", record)
	ws.PublishTaskErrorEvent(ws.EventRecorded, record)

	if task.NotifyOnError {
		title := fmt.Sprintf("Task Error: %s", task.Name)
		if err := s.notifier.Notify(ctx, title, errorMessage, notifier.PriorityHigh); err != nil {
			// Notification failures never fail the run path
			s.logger.Warnf("Failed to send error notification for %s: %v", task.Name, err)
		}
	}

	return nil
}

// Run executes fn under full lifecycle bookkeeping for the named task.
// Inactive or unknown tasks are skipped and fn is not called. The
// original error from fn is returned so the caller's retry policy still
// sees it.
func (s *Service) Run(ctx context.Context, taskName string, fn TaskFunc) (map[string]interface{}, error) {
	task, err := s.GetActiveTask(taskName)
	if err != nil {
		return nil, err
	}
	if task == nil {
		s.logger.Warnf("Task %s is not active or not configured, skipping execution", taskName)
		return nil, nil
	}

	if err := s.HandleStart(task); err != nil {
		return nil, err
	}

	result, runErr := fn(ctx)
	if runErr != nil {
		ec := errorContext(runErr)
		if err := s.HandleError(ctx, task, ec); err != nil {
			s.logger.Errorf("Failed to record error for task %s: %v", taskName, err)
		}
		return nil, runErr
	}

	if err := s.HandleSuccess(task, result); err != nil {
		return result, err
	}
	return result, nil
}

// errorContext extracts attribution from a *taskerr.Failure, falling
// back to an unattributed context that still dedups per task and type
func errorContext(err error) taskerr.ErrorContext {
	var failure *taskerr.Failure
	if errors.As(err, &failure) {
		return failure.Context
	}
	return taskerr.ErrorContext{
		Type:       "Error",
		Message:    err.Error(),
		OccurredAt: time.Now(),
	}
}
