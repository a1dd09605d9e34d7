package sync

import (
	"sync"
	"time"
)

// EventType names a drain lifecycle event.
type EventType string

const (
	EventSyncStarted    EventType = "sync.started"
	EventSyncItemSynced EventType = "sync.item_synced"
	EventSyncItemFailed EventType = "sync.item_failed"
	EventSyncCompleted  EventType = "sync.completed"
)

// Event is published to listeners during a drain.
type Event struct {
	Type      EventType              `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// Listener receives events. Listeners run synchronously on the draining
// goroutine and must not block.
type Listener func(Event)

// Events fans drain events out to subscribed listeners.
type Events struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]Listener
}

func newEvents() *Events {
	return &Events{listeners: make(map[int]Listener)}
}

// Subscribe registers l and returns a func that removes it.
func (e *Events) Subscribe(l Listener) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = l
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

func (e *Events) publish(t EventType, data map[string]interface{}) {
	e.mu.RLock()
	listeners := make([]Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		listeners = append(listeners, l)
	}
	e.mu.RUnlock()

	ev := Event{Type: t, Data: data, Timestamp: time.Now().Unix()}
	for _, l := range listeners {
		l(ev)
	}
}
