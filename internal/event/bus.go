package event

import (
	"sync"
	"time"
)

type Type string

const (
	RunStarted         Type = "run_started"
	RunCompleted       Type = "run_completed"
	InstanceScheduled  Type = "instance_scheduled"
	InstanceConflict   Type = "instance_conflict"
	EntryStatusChanged Type = "entry_status_changed"

	EmergencyRequested Type = "emergency_requested"
	EmergencyApproved  Type = "emergency_approved"
	EmergencyRejected  Type = "emergency_rejected"
	EmergencyScheduled Type = "emergency_scheduled"
)

// Event is one scheduling lifecycle notification. Only the fields relevant
// to the Type are populated.
type Event struct {
	Type  Type
	RunID string
	At    time.Time

	ProcessInstanceID string
	MachineID         string
	EntryID           string
	EmergencyID       string

	// Detail is free-form context: conflict text, decision actor, and so on.
	Detail string
}

// Handler receives published events. Handlers run on their own goroutine
// and must tolerate events arriving after the publisher has moved on.
type Handler func(e Event)

// Bus is an in-memory publish/subscribe fan-out. Publishing never blocks
// the scheduling pipeline; delivery is fire-and-forget.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	all      []Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[Type][]Handler)}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// SubscribeAll registers a handler for every event type. Forwarders
// (NATS, websocket) use this to mirror the whole stream.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish delivers e to every matching handler, each on its own goroutine
// so a slow consumer cannot stall the run.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, h := range b.handlers[e.Type] {
		go h(e)
	}
	for _, h := range b.all {
		go h(e)
	}
}
