// Package notify delivers the core's notifications (status-changed,
// config-changed, resources-sampled) to registered listeners. Delivery is
// asynchronous relative to the triggering call: a listener can never
// re-enter the cache or history its trigger is still touching. The queue is
// bounded; when it overflows the event is dropped with a warning rather
// than ever blocking a tick or a redefinition.
package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/projecteru2/core/log"

	"github.com/projecteru2/virtmon/types"
)

// Event is one notification. The concrete types below are the closed set of
// events the core emits, each fired at most once per triggering tick or
// operation.
type Event interface {
	// Machine is the name of the machine the event concerns.
	Machine() string
}

// StatusChanged fires on every lifecycle transition, carrying the new
// normalized state.
type StatusChanged struct {
	Name  string
	State types.LifecycleState
}

func (e StatusChanged) Machine() string { return e.Name }

// ConfigChanged fires when a refresh observes an active document different
// from the previously cached one.
type ConfigChanged struct {
	Name string
}

func (e ConfigChanged) Machine() string { return e.Name }

// ResourcesSampled fires after each tick appends a new sample.
type ResourcesSampled struct {
	Name string
}

func (e ResourcesSampled) Machine() string { return e.Name }

// Listener receives events. Listeners run on the hub's worker pool and must
// not assume any ordering across machines.
type Listener func(Event)

// Hub fans events out to listeners through a bounded queue and a goroutine
// pool.
type Hub struct {
	mu        sync.RWMutex
	listeners []Listener

	queue chan Event
	pool  *ants.Pool
	once  sync.Once
	done  chan struct{}
}

// NewHub creates a hub with the given queue bound and worker pool size.
func NewHub(queueSize, poolSize int) (*Hub, error) {
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("create dispatch pool: %w", err)
	}
	h := &Hub{
		queue: make(chan Event, queueSize),
		pool:  pool,
		done:  make(chan struct{}),
	}
	go h.dispatch()
	return h, nil
}

// Subscribe registers a listener for all subsequent events.
func (h *Hub) Subscribe(l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, l)
}

// Publish enqueues an event without blocking. Events beyond the queue bound
// are dropped.
func (h *Hub) Publish(ev Event) {
	select {
	case h.queue <- ev:
	default:
		log.WithFunc("notify.Publish").Warnf(context.TODO(),
			"event queue full, dropping %T for %s", ev, ev.Machine())
	}
}

func (h *Hub) dispatch() {
	logger := log.WithFunc("notify.dispatch")
	for {
		select {
		case <-h.done:
			return
		case ev := <-h.queue:
			h.mu.RLock()
			listeners := make([]Listener, len(h.listeners))
			copy(listeners, h.listeners)
			h.mu.RUnlock()
			for _, l := range listeners {
				l := l
				if err := h.pool.Submit(func() { l(ev) }); err != nil {
					logger.Warnf(context.TODO(), "submit event %T: %v", ev, err)
				}
			}
		}
	}
}

// Close stops dispatching and releases the worker pool. Queued events are
// discarded.
func (h *Hub) Close() {
	h.once.Do(func() {
		close(h.done)
		h.pool.Release()
	})
}
