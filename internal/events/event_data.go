package events

import (
	"encoding/json"
)

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// StockAddedData contains data for StockAdded events
type StockAddedData struct {
	Username string `json:"username"`
	Symbol   string `json:"symbol"`
	Source   string `json:"source"` // "cache" or "provider"
}

// EventType returns the event type for StockAddedData
func (d *StockAddedData) EventType() EventType {
	return StockAdded
}

// StockRemovedData contains data for StockRemoved events
type StockRemovedData struct {
	Username string `json:"username"`
	Symbol   string `json:"symbol"`
	Removed  int64  `json:"removed"`
}

// EventType returns the event type for StockRemovedData
func (d *StockRemovedData) EventType() EventType {
	return StockRemoved
}

// RefreshCompletedData contains data for RefreshCompleted events
type RefreshCompletedData struct {
	Mode      string `json:"mode"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
}

// EventType returns the event type for RefreshCompletedData
func (d *RefreshCompletedData) EventType() EventType {
	return RefreshCompleted
}

// BackupCompletedData contains data for BackupCompleted events
type BackupCompletedData struct {
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// toMap flattens typed event data into the generic map carried by Event.
func toMap(data EventData) map[string]interface{} {
	raw, err := json.Marshal(data)
	if err != nil {
		return map[string]interface{}{}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]interface{}{}
	}
	return m
}
