package taskerr

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"taskops/internal/model"
)

const countCacheTTL = 30 * time.Second

func countCacheKey(taskID int) string {
	return fmt.Sprintf("taskops:errcount:%d", taskID)
}

// Get returns a single error record by ID
func (s *Store) Get(id int) (*model.TaskError, error) {
	var record model.TaskError
	if err := s.db.First(&record, id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// ActiveErrors returns a task's non-cleared errors, most recent first
func (s *Store) ActiveErrors(taskID int) ([]model.TaskError, error) {
	var records []model.TaskError
	err := s.db.
		Where("task_id = ? AND cleared = ?", taskID, false).
		Order("last_seen DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active errors for task %d: %w", taskID, err)
	}
	return records, nil
}

// List returns a page of a task's errors, optionally filtered by status
func (s *Store) List(taskID int, status model.TaskErrorStatus, page, pageSize int) ([]model.TaskError, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	query := s.db.Model(&model.TaskError{}).Where("task_id = ?", taskID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count errors for task %d: %w", taskID, err)
	}

	var records []model.TaskError
	err := query.
		Order("last_seen DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list errors for task %d: %w", taskID, err)
	}

	return records, total, nil
}

// CountByStatus returns the number of a task's errors per status.
// Results are cached in redis for a short window when a client is
// configured; the cache is dropped whenever the task's errors change.
func (s *Store) CountByStatus(ctx context.Context, taskID int) (map[model.TaskErrorStatus]int64, error) {
	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, countCacheKey(taskID)).Result(); err == nil {
			counts := make(map[model.TaskErrorStatus]int64)
			if err := json.Unmarshal([]byte(cached), &counts); err == nil {
				return counts, nil
			}
		}
	}

	type statusCount struct {
		Status model.TaskErrorStatus
		Count  int64
	}
	var rows []statusCount
	err := s.db.Model(&model.TaskError{}).
		Select("status, COUNT(*) AS count").
		Where("task_id = ?", taskID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count errors by status for task %d: %w", taskID, err)
	}

	counts := make(map[model.TaskErrorStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}

	if s.rdb != nil {
		if payload, err := json.Marshal(counts); err == nil {
			s.rdb.Set(ctx, countCacheKey(taskID), payload, countCacheTTL)
		}
	}

	return counts, nil
}

func (s *Store) invalidateCountCache(taskID int) {
	if s.rdb == nil {
		return
	}
	s.rdb.Del(context.Background(), countCacheKey(taskID))
}
