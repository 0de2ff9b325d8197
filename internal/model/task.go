package model

import (
	"time"

	"gorm.io/datatypes"
)

// Task run status constants
const (
	TaskRunStatusSuccess = "success"
	TaskRunStatusError   = "error"
)

// Task represents a named background task tracked by the control plane.
// App is the owning application namespace (the leading segment of Name),
// used both for queue routing and as the owner discriminator for errors.
type Task struct {
	BaseModel
	Name           string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"name"`
	App            string         `gorm:"type:varchar(64);not null;index" json:"app"`
	Description    string         `gorm:"type:text" json:"description"`
	IsActive       bool           `gorm:"not null;default:true" json:"is_active"`
	NotifyOnError  bool           `gorm:"not null;default:false" json:"notify_on_error"`
	DisableOnError bool           `gorm:"not null;default:false" json:"disable_on_error"`
	MaxRetries     int            `gorm:"not null;default:3" json:"max_retries"`
	Schedule       string         `gorm:"type:varchar(100)" json:"schedule"`
	LastRun        *time.Time     `json:"last_run"`
	LastStatus     string         `gorm:"type:enum('success','error','');default:''" json:"last_status"`
	LastResult     datatypes.JSON `gorm:"type:json" json:"last_result"`
	LastError      string         `gorm:"type:text" json:"last_error"`
}

// TableName specifies the table name for Task
func (Task) TableName() string {
	return "tasks"
}
