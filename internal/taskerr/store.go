package taskerr

import (
	"fmt"
	"time"

	"taskops/internal/model"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrorContext carries the attribution of a single observed failure.
// Callers construct it from what they actually observed; the store does
// no stack inspection of its own.
type ErrorContext struct {
	Type         string
	FilePath     string
	FunctionName string
	LineNumber   int
	Message      string
	OccurredAt   time.Time
}

// Store is the deduplicated task error store. Uniqueness per identity
// tuple is enforced by the database, so concurrent writers cannot race
// a duplicate row into existence.
type Store struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewStore creates a task error store. rdb may be nil; it only backs
// the status-count cache.
func NewStore(db *gorm.DB, rdb *redis.Client) *Store {
	return &Store{db: db, rdb: rdb}
}

// RecordFailure records one failure observation for a task.
//
// A miss on the identity tuple (task, error_type, file_path,
// function_name, line_number) creates a new record in status "new".
// A hit increments occurrence_count, refreshes last_seen, replaces the
// message, and moves the record to "ongoing" from any prior status --
// including "cleared", which re-surfaces a resolved error.
func (s *Store) RecordFailure(taskID int, ec ErrorContext) (*model.TaskError, error) {
	if ec.OccurredAt.IsZero() {
		ec.OccurredAt = time.Now()
	}

	record := model.TaskError{
		TaskID:          taskID,
		ErrorType:       ec.Type,
		FilePath:        ec.FilePath,
		FunctionName:    ec.FunctionName,
		LineNumber:      ec.LineNumber,
		ErrorMessage:    ec.Message,
		OccurrenceCount: 1,
		FirstSeen:       ec.OccurredAt,
		LastSeen:        ec.OccurredAt,
		Status:          model.TaskErrorStatusNew,
	}

	// Atomic upsert on the identity unique index. The conflict branch is
	// the observation path for an existing record: bump the counter and
	// force the record back to ongoing, dropping any cleared state.
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "task_id"},
			{Name: "error_type"},
			{Name: "file_path"},
			{Name: "function_name"},
			{Name: "line_number"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"occurrence_count": gorm.Expr("occurrence_count + 1"),
			"last_seen":        ec.OccurredAt,
			"error_message":    ec.Message,
			"status":           string(model.TaskErrorStatusOngoing),
			"cleared":          false,
			"cleared_at":       nil,
			"cleared_by_id":    nil,
		}),
	}).Create(&record).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert task error: %w", err)
	}

	s.invalidateCountCache(taskID)

	// Re-read the authoritative row; after a conflict the in-memory
	// record does not reflect the incremented counter.
	var out model.TaskError
	err = s.db.Where(
		"task_id = ? AND error_type = ? AND file_path = ? AND function_name = ? AND line_number = ?",
		taskID, ec.Type, ec.FilePath, ec.FunctionName, ec.LineNumber,
	).First(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load task error after upsert: %w", err)
	}

	return &out, nil
}
