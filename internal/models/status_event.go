package models

import "time"

// StatusEvent is the payload broadcast to controller clients for each
// status-update event
type StatusEvent struct {
	Message   string    `json:"message"`
	Level     string    `json:"level"`
	Timestamp time.Time `json:"timestamp"`
	Stats     RunStatus `json:"stats"`
}
