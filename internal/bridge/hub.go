package bridge

import (
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type listenerEntry struct {
	id string
	ch Channel
	fn Listener
}

type queuedEvent struct {
	ev        Event
	listeners []*listenerEntry
}

// Hub fans events out to listeners. Publish never blocks: events are queued
// and delivered by a single dispatcher goroutine, so every listener sees
// events in publish order. A listener only receives events published while it
// was subscribed, and stops receiving as soon as it unsubscribes.
type Hub struct {
	mu        sync.Mutex
	listeners map[string]*listenerEntry
	order     []string
	queue     []queuedEvent
	closed    bool

	wake chan struct{}
	done chan struct{}
	idle *sync.Cond
	busy bool
}

// NewHub creates a hub and starts its dispatcher.
func NewHub() *Hub {
	h := &Hub{
		listeners: make(map[string]*listenerEntry),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	h.idle = sync.NewCond(&h.mu)
	go h.dispatch()
	return h
}

// Subscribe registers fn for events on ch.
func (h *Hub) Subscribe(ch Channel, fn Listener) (Subscription, error) {
	if !ch.Valid() {
		return nil, ErrChannelNotAllowed
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	e := &listenerEntry{id: uuid.NewString(), ch: ch, fn: fn}
	h.listeners[e.id] = e
	h.order = append(h.order, e.id)
	return &hubSubscription{hub: h, id: e.id}, nil
}

// Publish queues ev for every listener currently subscribed to its channel.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	var targets []*listenerEntry
	for _, id := range h.order {
		if e := h.listeners[id]; e.ch == ev.Channel {
			targets = append(targets, e)
		}
	}
	if len(targets) == 0 {
		return
	}
	h.queue = append(h.queue, queuedEvent{ev: ev, listeners: targets})
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// ListenerCount returns the number of listeners on ch.
func (h *Hub) ListenerCount(ch Channel) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.listeners {
		if e.ch == ch {
			n++
		}
	}
	return n
}

// TotalListeners returns the number of listeners across all channels.
func (h *Hub) TotalListeners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// Flush blocks until every event published before the call was delivered.
func (h *Hub) Flush() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for (len(h.queue) > 0 || h.busy) && !h.closed {
		h.idle.Wait()
	}
}

// Close stops the dispatcher and drops undelivered events.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.queue = nil
	h.listeners = make(map[string]*listenerEntry)
	h.order = nil
	h.idle.Broadcast()
	h.mu.Unlock()
	close(h.done)
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.listeners[id]; !ok {
		return
	}
	delete(h.listeners, id)
	for i, oid := range h.order {
		if oid == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

func (h *Hub) active(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.listeners[id]
	return ok
}

func (h *Hub) dispatch() {
	for {
		select {
		case <-h.done:
			return
		case <-h.wake:
		}
		for {
			h.mu.Lock()
			if h.closed || len(h.queue) == 0 {
				h.busy = false
				h.idle.Broadcast()
				h.mu.Unlock()
				break
			}
			item := h.queue[0]
			h.queue[0] = queuedEvent{}
			h.queue = h.queue[1:]
			h.busy = true
			h.mu.Unlock()

			for _, e := range item.listeners {
				if !h.active(e.id) {
					continue
				}
				h.deliver(e, item.ev)
			}
		}
	}
}

func (h *Hub) deliver(e *listenerEntry, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[bridge] listener for %s panicked: %v", ev.Channel, r)
		}
	}()
	e.fn(ev)
}

type hubSubscription struct {
	hub  *Hub
	id   string
	once sync.Once
}

func (s *hubSubscription) Unsubscribe() {
	s.once.Do(func() { s.hub.unsubscribe(s.id) })
}
