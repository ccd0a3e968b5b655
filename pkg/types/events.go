package types

import "sync"

// AgentEventType identifies the kind of agent event.
type AgentEventType string

const (
	EventRunStart   AgentEventType = "run_start"
	EventStepStart  AgentEventType = "step_start"
	EventModelCall  AgentEventType = "model_call"
	EventToolStart  AgentEventType = "tool_start"
	EventToolEnd    AgentEventType = "tool_end"
	EventCompaction AgentEventType = "compaction"
	EventVerify     AgentEventType = "verify"
	EventRunEnd     AgentEventType = "run_end"
)

// AgentEvent represents an event emitted during a task run.
type AgentEvent struct {
	Type     AgentEventType
	Step     int    // loop step, set for step-scoped events
	ToolName string // set for ToolStart/ToolEnd
	Content  string // event-specific detail text
	Error    error  // set for RunEnd on failure
}

// subscriber is an identified event callback.
type subscriber struct {
	id uint64
	fn func(AgentEvent)
}

// EventEmitter provides a simple pub-sub mechanism for agent events.
type EventEmitter struct {
	mu     sync.RWMutex
	subs   []subscriber
	nextID uint64
}

// NewEventEmitter creates a new EventEmitter.
func NewEventEmitter() *EventEmitter {
	return &EventEmitter{}
}

// Subscribe registers a callback to receive events. Returns an unsubscribe
// function that safely removes the callback by ID.
func (e *EventEmitter) Subscribe(fn func(AgentEvent)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.subs = append(e.subs, subscriber{id: id, fn: fn})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, s := range e.subs {
			if s.id == id {
				// Remove by swapping with last element to avoid O(n) shifts.
				e.subs[i] = e.subs[len(e.subs)-1]
				e.subs = e.subs[:len(e.subs)-1]
				break
			}
		}
	}
}

// Emit sends an event to all subscribers.
func (e *EventEmitter) Emit(event AgentEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, s := range e.subs {
		s.fn(event)
	}
}
