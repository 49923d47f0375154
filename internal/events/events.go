// Package events carries run notifications from the pipeline to whoever is
// listening: the terminal UI, the HTTP event stream, or nobody at all.
// Delivery is fire-and-forget; a slow or absent listener never blocks a worker.
package events

import "sync"

// Kind names a notification. The values double as SSE event names.
type Kind string

const (
	KindStatus   Kind = "status_update"
	KindFile     Kind = "file_start"
	KindProgress Kind = "progress"
	KindRunState Kind = "processing_state_change"
)

// Progress is the payload of a KindProgress event.
type Progress struct {
	Total       uint64 `json:"total"`
	Done        uint64 `json:"done"`
	CurrentFile string `json:"current_file"`
}

// Event is a single notification. Only the field matching Kind is set.
type Event struct {
	Kind     Kind
	Status   string
	File     string
	Progress Progress
	Running  bool
}

// Payload returns the value that represents the event on the wire.
func (e Event) Payload() any {
	switch e.Kind {
	case KindStatus:
		return e.Status
	case KindFile:
		return e.File
	case KindProgress:
		return e.Progress
	case KindRunState:
		return e.Running
	default:
		return nil
	}
}

func Status(text string) Event { return Event{Kind: KindStatus, Status: text} }

func FileStarted(name string) Event { return Event{Kind: KindFile, File: name} }

func ProgressOf(total, done uint64, current string) Event {
	return Event{Kind: KindProgress, Progress: Progress{Total: total, Done: done, CurrentFile: current}}
}

func RunState(running bool) Event { return Event{Kind: KindRunState, Running: running} }

// Sink receives notifications. Emit must not block.
type Sink interface {
	Emit(Event)
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(Event) {}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Bus fans events out to any number of subscribers. Each subscriber owns a
// buffered channel; events that do not fit are dropped for that subscriber.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
}

// NewBus creates a bus with no subscribers.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a listener with the given buffer size. The returned
// cancel func unregisters it and closes the channel; it is safe to call twice.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Emit delivers e to every subscriber that has room for it.
func (b *Bus) Emit(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribers reports how many listeners are registered.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
