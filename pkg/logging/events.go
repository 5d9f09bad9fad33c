// pkg/logging/events.go - structured pipeline events written to events.jsonl

package logging

import (
	"time"
)

// Event is one structured record describing a pipeline stage outcome.
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"session_id"`
	Level     string                 `json:"level"`
	Package   string                 `json:"package"`
	Version   string                 `json:"version,omitempty"`
	Stage     string                 `json:"stage"`
	Status    string                 `json:"status"` // started, completed, skipped, failed
	Message   string                 `json:"message"`
	Duration  *time.Duration         `json:"duration,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// EventOption allows customizing log events
type EventOption func(*Event)

// WithVersion sets the version for the event
func WithVersion(version string) EventOption {
	return func(e *Event) {
		e.Version = version
	}
}

// WithDuration sets the duration for the event
func WithDuration(duration time.Duration) EventOption {
	return func(e *Event) {
		e.Duration = &duration
	}
}

// WithError sets the error message for the event
func WithError(err error) EventOption {
	return func(e *Event) {
		if err != nil {
			e.Error = err.Error()
			e.Level = LevelError.String()
		}
	}
}

// WithContext adds context information to the event
func WithContext(key string, value interface{}) EventOption {
	return func(e *Event) {
		if e.Context == nil {
			e.Context = make(map[string]interface{})
		}
		e.Context[key] = value
	}
}

// LogStageEvent records a structured stage event. It is a no-op until the
// logger has been initialised with a log directory.
func LogStageEvent(pkg, stage, status, message string, opts ...EventOption) {
	if instance == nil {
		return
	}
	event := Event{
		Timestamp: time.Now(),
		Level:     LevelInfo.String(),
		Package:   pkg,
		Stage:     stage,
		Status:    status,
		Message:   message,
	}
	for _, opt := range opts {
		opt(&event)
	}
	instance.writeEvent(event)
}
