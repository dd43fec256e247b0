// Package events provides in-process event emission and fan-out to subscribers.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	StockAdded       EventType = "STOCK_ADDED"
	StockRemoved     EventType = "STOCK_REMOVED"
	RefreshCompleted EventType = "REFRESH_COMPLETED"
	BackupCompleted  EventType = "BACKUP_COMPLETED"
	ErrorOccurred    EventType = "ERROR_OCCURRED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}
