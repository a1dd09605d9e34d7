// Package connectivity tracks whether the remote endpoint is believed to
// be reachable and notifies subscribers on transitions.
package connectivity

import (
	"sync"

	"github.com/benbakir04-create/teachers-report/backend/internal/logging"
)

type subscription struct {
	onOnline  func()
	onOffline func()
}

// Observer holds the process-wide online flag. The flag is a heuristic fed
// by platform signals; being online does not guarantee the remote answers.
type Observer struct {
	mu     sync.RWMutex
	online bool
	nextID int
	subs   map[int]subscription
	logger *logging.Logger
}

// NewObserver creates an Observer with the given initial state.
func NewObserver(initial bool, logger *logging.Logger) *Observer {
	if logger == nil {
		logger = logging.Get()
	}
	return &Observer{
		online: initial,
		subs:   make(map[int]subscription),
		logger: logger,
	}
}

// IsOnline returns the current state.
func (o *Observer) IsOnline() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.online
}

// OnChange registers callbacks for transitions. Either callback may be nil.
// The returned func removes the subscription and is safe to call twice.
func (o *Observer) OnChange(onOnline, onOffline func()) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = subscription{onOnline: onOnline, onOffline: onOffline}
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

// Set records a platform signal. Subscribers are called synchronously, in
// no particular order, only when the state actually changes.
func (o *Observer) Set(online bool) {
	o.mu.Lock()
	if o.online == online {
		o.mu.Unlock()
		return
	}
	o.online = online
	callbacks := make([]func(), 0, len(o.subs))
	for _, sub := range o.subs {
		cb := sub.onOffline
		if online {
			cb = sub.onOnline
		}
		if cb != nil {
			callbacks = append(callbacks, cb)
		}
	}
	o.mu.Unlock()

	o.logger.Info("Connectivity changed", map[string]interface{}{"online": online})

	for _, cb := range callbacks {
		cb()
	}
}
