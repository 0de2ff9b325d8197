package model

import (
	"fmt"
	"time"
)

// TaskErrorStatus represents the lifecycle status of a task error
type TaskErrorStatus string

const (
	// TaskErrorStatusNew means the error was created on the latest run
	TaskErrorStatusNew TaskErrorStatus = "new"
	// TaskErrorStatusOngoing means the error recurred on subsequent runs
	TaskErrorStatusOngoing TaskErrorStatus = "ongoing"
	// TaskErrorStatusRegressed means the error stopped recurring without being resolved
	TaskErrorStatusRegressed TaskErrorStatus = "regressed"
	// TaskErrorStatusCleared means the error was manually cleared by a user
	TaskErrorStatusCleared TaskErrorStatus = "cleared"
)

// TaskError is a deduplicated failure record for a task.
// Identity is (task_id, error_type, file_path, function_name, line_number);
// the composite unique index guarantees at most one row per identity even
// under concurrent writers.
type TaskError struct {
	BaseModel
	TaskID       int    `gorm:"not null;uniqueIndex:uk_error_identity,priority:1" json:"task_id"`
	Task         Task   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ErrorType    string `gorm:"type:varchar(128);not null;uniqueIndex:uk_error_identity,priority:2" json:"error_type"`
	FilePath     string `gorm:"type:varchar(255);not null;uniqueIndex:uk_error_identity,priority:3" json:"file_path"`
	FunctionName string `gorm:"type:varchar(128);not null;uniqueIndex:uk_error_identity,priority:4" json:"function_name"`
	LineNumber   int    `gorm:"not null;uniqueIndex:uk_error_identity,priority:5" json:"line_number"`

	ErrorMessage    string          `gorm:"type:text;not null" json:"error_message"`
	OccurrenceCount int             `gorm:"not null;default:1" json:"occurrence_count"`
	FirstSeen       time.Time       `gorm:"not null" json:"first_seen"`
	LastSeen        time.Time       `gorm:"not null;index" json:"last_seen"`
	Status          TaskErrorStatus `gorm:"type:enum('new','ongoing','regressed','cleared');not null;default:'new';index" json:"status"`
	Cleared         bool            `gorm:"not null;default:false" json:"cleared"`
	ClearedAt       *time.Time      `json:"cleared_at"`
	ClearedByID     *int            `json:"cleared_by_id"`
	ClearedBy       *User           `gorm:"foreignKey:ClearedByID;constraint:OnDelete:SET NULL" json:"-"`
}

// TableName specifies the table name for TaskError
func (TaskError) TableName() string {
	return "task_errors"
}

// String returns a short human-readable summary of the error
func (e *TaskError) String() string {
	return fmt.Sprintf("%s in %s (%d times)", e.ErrorType, e.FunctionName, e.OccurrenceCount)
}

// IsResolved reports whether the error is in the cleared state
func (e *TaskError) IsResolved() bool {
	return e.Cleared && e.Status == TaskErrorStatusCleared
}
