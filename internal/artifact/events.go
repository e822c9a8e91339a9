package artifact

import "sync"

// Lifecycle event names emitted during a batch. These strings are part of
// the observable contract between helpers, the orchestrator, and tests.
const (
	EventPulled        = "pulled"
	EventPulledError   = "pulled-error"
	EventPulledWarning = "pulled-warning"
	EventPushed        = "pushed"
	EventPushedError   = "pushed-error"
	EventPushedWarning = "pushed-warning"
	EventLocalOnly     = "local-only"
	EventDiff          = "diff"
	EventAdded         = "added"
	EventRemoved       = "removed"
	EventPostProcess   = "post-process"
)

// Event is one lifecycle notification. Err and Message are set for error
// and warning events; Item is set whenever the event concerns one item.
type Event struct {
	Name    string
	Item    Item
	Err     error
	Message string
}

// Handler receives events from an Emitter.
type Handler func(Event)

// Emitter is an explicit observer registry scoped to one operation's
// Context. Each top-level CLI invocation gets its own emitter, so
// concurrent invocations never observe each other's events.
//
// Emit may be called from multiple goroutines; handlers must therefore
// accumulate order-independently (counts and error lists, not sequences).
type Emitter struct {
	mu       sync.Mutex
	handlers map[string][]*registration
}

// registration wraps a handler so removal can match by identity.
type registration struct {
	h Handler
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[string][]*registration)}
}

// On registers a handler for the named event and returns a function
// that removes it again. Batches detach their accumulators when they
// complete, so later batches on the same emitter do not keep feeding
// results that were already reported.
func (e *Emitter) On(name string, h Handler) func() {
	reg := &registration{h: h}
	e.mu.Lock()
	e.handlers[name] = append(e.handlers[name], reg)
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		list := e.handlers[name]
		for i, r := range list {
			if r == reg {
				e.handlers[name] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers the event to every handler registered for its name.
// Handlers run synchronously under the emitter lock so that a handler
// sees each event exactly once and accumulation needs no extra locking.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.handlers[ev.Name] {
		r.h(ev)
	}
}
