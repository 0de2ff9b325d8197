package taskerr

import (
	"fmt"
	"time"

	"taskops/internal/model"
)

// SweepRegressions demotes a task's stale errors to "regressed".
//
// Only non-cleared records in status new/ongoing whose last_seen is
// older than now-staleness are touched. The staleness predicate is part
// of the UPDATE itself, so a record observed between selection and
// write keeps its status.
func (s *Store) SweepRegressions(taskID int, now time.Time, staleness time.Duration) (int64, error) {
	res := s.db.Model(&model.TaskError{}).
		Where("task_id = ? AND cleared = ? AND status IN ? AND last_seen < ?",
			taskID,
			false,
			[]model.TaskErrorStatus{model.TaskErrorStatusNew, model.TaskErrorStatusOngoing},
			now.Add(-staleness),
		).
		Update("status", model.TaskErrorStatusRegressed)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to sweep regressions for task %d: %w", taskID, res.Error)
	}

	if res.RowsAffected > 0 {
		s.invalidateCountCache(taskID)
	}

	return res.RowsAffected, nil
}

// Clear marks the given error records as cleared, regardless of their
// prior status. userID attributes the clear and may be nil.
func (s *Store) Clear(ids []int, userID *int, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res := s.db.Model(&model.TaskError{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"cleared":       true,
			"cleared_at":    now,
			"cleared_by_id": userID,
			"status":        string(model.TaskErrorStatusCleared),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clear task errors: %w", res.Error)
	}

	return res.RowsAffected, nil
}

// ClearByTask bulk-clears every non-cleared error of a task
func (s *Store) ClearByTask(taskID int, userID *int, now time.Time) (int64, error) {
	res := s.db.Model(&model.TaskError{}).
		Where("task_id = ? AND cleared = ?", taskID, false).
		Updates(map[string]interface{}{
			"cleared":       true,
			"cleared_at":    now,
			"cleared_by_id": userID,
			"status":        string(model.TaskErrorStatusCleared),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clear errors for task %d: %w", taskID, res.Error)
	}

	s.invalidateCountCache(taskID)
	return res.RowsAffected, nil
}
