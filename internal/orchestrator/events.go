package orchestrator

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/cohortlabs/cohort/pkg/models"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventTaskAccepted indicates a task entered the control loop.
	EventTaskAccepted EventType = "task_accepted"
	// EventAnalysisCompleted indicates the task analysis finished.
	EventAnalysisCompleted EventType = "analysis_completed"
	// EventAgentsCreated indicates the task's agents were acquired.
	EventAgentsCreated EventType = "agents_created"
	// EventPlanCreated indicates a coordination plan was built.
	EventPlanCreated EventType = "plan_created"
	// EventStrategyFallback indicates the chosen strategy rejected the task
	// and sequential coordination was substituted.
	EventStrategyFallback EventType = "strategy_fallback"
	// EventTaskCompleted indicates the task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates the task failed.
	EventTaskFailed EventType = "task_failed"
	// EventTaskCancelled indicates the task was cancelled.
	EventTaskCancelled EventType = "task_cancelled"
)

// Event is one progress notification emitted by the orchestrator.
// The CLI subscribes to these to render live status.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the ID of the related task.
	TaskID string
	// PlanID is the related plan, if one exists.
	PlanID string
	// Strategy is the coordination pattern in play, if any.
	Strategy models.StrategyKind
	// Message provides additional context about the event.
	Message string
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// EventEmitter fans orchestrator events out to one subscriber over a bounded
// channel. A full channel gets a short grace period before the event is
// dropped and counted, so a slow subscriber can never stall the control loop.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEventEmitter creates an emitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &EventEmitter{events: make(chan Event, bufferSize)}
}

// Emit sends an event, trying an immediate send first and then a short
// timeout so the receiver can drain before the event is dropped.
func (e *EventEmitter) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
		return
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 { // log every 10th drop to avoid spam
			log.Printf("[orchestrator] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of dropped events.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns the read-only event channel for subscribers.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the event channel. Call only after the orchestrator stopped.
func (e *EventEmitter) Close() {
	close(e.events)
}
