package domain

import "time"

// EventType identifies a lifecycle event published on the event bus.
type EventType string

const (
	EventTypeRunStarted          EventType = "run.started"
	EventTypeRunCompleted        EventType = "run.completed"
	EventTypeRunCancelled        EventType = "run.cancelled"
	EventTypePipelineStarted     EventType = "pipeline.started"
	EventTypePipelineCompleted   EventType = "pipeline.completed"
	EventTypeStageStarted        EventType = "stage.started"
	EventTypeStageCompleted      EventType = "stage.completed"
	EventTypeDeploymentStarted   EventType = "deployment.started"
	EventTypeDeploymentCompleted EventType = "deployment.completed"
)

// Event is a lifecycle notification emitted while a run executes.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	RunID     string                 `json:"run_id"`
	ServiceID string                 `json:"service_id,omitempty"`
	Stage     string                 `json:"stage,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}
