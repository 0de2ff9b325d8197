package ws

import (
	"encoding/json"
	"fmt"
	"log"

	"taskops/internal/db"
	"taskops/internal/model"
)

// TopicTaskErrors is the event stream topic for task error changes
const TopicTaskErrors = "task_errors"

// Event types for the task_errors topic
const (
	EventRecorded  = "recorded"
	EventRegressed = "regressed"
	EventCleared   = "cleared"
)

// PublishTaskErrorEvent persists a task error event and broadcasts it
// to connected clients. Broadcast failure never affects the caller.
func PublishTaskErrorEvent(eventType string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[WebSocket] Failed to marshal payload: %v", err)
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := model.TaskEvent{
		Topic:     TopicTaskErrors,
		EventType: eventType,
		Payload:   string(payloadJSON),
	}

	if db.GetDB() == nil {
		// No database wired (tests, tooling): broadcast only
		BroadcastToAll(TopicTaskErrors+":update", map[string]interface{}{
			"type": eventType,
			"data": payload,
		})
		return nil
	}

	if err := db.GetDB().Create(&event).Error; err != nil {
		log.Printf("[WebSocket] Failed to write event to database: %v", err)
		return fmt.Errorf("failed to write event to database: %w", err)
	}

	BroadcastToAll(TopicTaskErrors+":update", map[string]interface{}{
		"eventId": event.ID,
		"type":    eventType,
		"data":    payload,
	})

	return nil
}

// GetIncrementalEvents retrieves task error events with id > lastEventID,
// oldest first, limited to maxCount
func GetIncrementalEvents(lastEventID int64, maxCount int) ([]model.TaskEvent, error) {
	var events []model.TaskEvent

	err := db.GetDB().
		Where("topic = ? AND id > ?", TopicTaskErrors, lastEventID).
		Order("id ASC").
		Limit(maxCount).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query incremental events: %w", err)
	}

	return events, nil
}
