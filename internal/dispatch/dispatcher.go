package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Envelope is one delivered event with its frame metadata.
type Envelope struct {
	Name       string
	Seq        int64 // 0 for lifecycle events
	SessionID  string
	Shard      int
	ReceivedAt time.Time
	Raw        json.RawMessage // Undecoded payload; nil for lifecycle events
	Event      Event
}

// Handler consumes an event. A returned error is logged and does not stop
// delivery to other handlers.
type Handler func(ctx context.Context, env Envelope) error

type subscription struct {
	id      uint64
	name    string // empty for catch-all subscribers
	handler Handler
}

// Stats contains delivery counters.
type Stats struct {
	Emitted       int64
	Delivered     int64
	HandlerErrors int64
	Panics        int64
}

// Dispatcher fans events out to an ordered list of subscribers.
type Dispatcher struct {
	logger *slog.Logger

	mu     sync.RWMutex
	subs   []subscription
	nextID uint64

	emitted       atomic.Int64
	delivered     atomic.Int64
	handlerErrors atomic.Int64
	panics        atomic.Int64
}

// New creates an empty Dispatcher.
func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger}
}

// Subscribe registers a handler for one event name and returns a function
// that removes it.
func (d *Dispatcher) Subscribe(name string, h Handler) (unsubscribe func()) {
	return d.add(name, h)
}

// SubscribeAll registers a handler for every event.
func (d *Dispatcher) SubscribeAll(h Handler) (unsubscribe func()) {
	return d.add("", h)
}

func (d *Dispatcher) add(name string, h Handler) func() {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.subs = append(d.subs, subscription{id: id, name: name, handler: h})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { d.remove(id) })
	}
}

func (d *Dispatcher) remove(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, s := range d.subs {
		if s.id == id {
			// Copy so snapshots taken by in-flight Emit calls stay intact.
			next := make([]subscription, 0, len(d.subs)-1)
			next = append(next, d.subs[:i]...)
			d.subs = append(next, d.subs[i+1:]...)
			return
		}
	}
}

// Emit delivers env to the subscribers registered for its name at the time
// of the call, in registration order. It returns after every handler ran.
func (d *Dispatcher) Emit(ctx context.Context, env Envelope) {
	if env.Name == "" && env.Event != nil {
		env.Name = env.Event.EventName()
	}

	d.mu.RLock()
	subs := d.subs
	d.mu.RUnlock()

	d.emitted.Add(1)

	for _, s := range subs {
		if s.name != "" && s.name != env.Name {
			continue
		}
		d.deliver(ctx, s, env)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, s subscription, env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			d.logger.Error("event handler panicked",
				"event", env.Name,
				"subscriber", s.id,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	if err := s.handler(ctx, env); err != nil {
		d.handlerErrors.Add(1)
		d.logger.Warn("event handler failed",
			"event", env.Name,
			"subscriber", s.id,
			"error", err,
		)
		return
	}
	d.delivered.Add(1)
}

// Len returns the number of registered subscribers.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

// Stats returns current delivery counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Emitted:       d.emitted.Load(),
		Delivered:     d.delivered.Load(),
		HandlerErrors: d.handlerErrors.Load(),
		Panics:        d.panics.Load(),
	}
}

// On subscribes a handler for one concrete event type. T must have a fixed
// name; use Subscribe with the name for Unknown events.
func On[T Event](d *Dispatcher, fn func(ctx context.Context, ev T, env Envelope) error) (unsubscribe func()) {
	var zero T
	return d.Subscribe(zero.EventName(), func(ctx context.Context, env Envelope) error {
		ev, ok := env.Event.(T)
		if !ok {
			return fmt.Errorf("dispatch: %s carried %T", env.Name, env.Event)
		}
		return fn(ctx, ev, env)
	})
}
