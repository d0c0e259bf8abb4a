// Package connectivity provides the process-wide source of truth for
// online/offline status. Host signals (or the polling watcher) feed
// SetOnline; subscribers are notified only on real transitions.
package connectivity

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/mwangivic/soma/internal/logging"
	"github.com/mwangivic/soma/internal/notify"
)

// Listener receives the new online state after a transition.
type Listener func(online bool)

type registration struct {
	id int64
	fn Listener
}

// Observer tracks connectivity state and fans out transition notifications.
// It is constructed once at startup and passed to consumers; it has no
// teardown of its own.
type Observer struct {
	mu        sync.Mutex
	online    bool
	nextID    int64
	listeners []registration
	notifier  notify.Notifier
}

// NewObserver creates an Observer seeded with the current host status.
func NewObserver(initial bool, notifier notify.Notifier) *Observer {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Observer{online: initial, notifier: notifier}
}

// IsOnline returns the cached connectivity state. It never probes the
// network.
func (o *Observer) IsOnline() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.online
}

// SetOnline reports a host connectivity signal. Repeated signals for the
// current state are dropped; a real transition updates the cached state,
// emits a one-shot user notification, and invokes every listener with the
// new state in registration order.
func (o *Observer) SetOnline(online bool) {
	o.mu.Lock()
	if o.online == online {
		o.mu.Unlock()
		return
	}
	o.online = online
	listeners := make([]registration, len(o.listeners))
	copy(listeners, o.listeners)
	o.mu.Unlock()

	if online {
		o.notifier.Success("Connection restored. Syncing your changes...")
	} else {
		o.notifier.Warning("You are offline. Changes will sync when you reconnect.")
	}
	logging.Info("connectivity changed", map[string]interface{}{"online": online})

	// Listeners run outside the lock so they can re-enter the observer.
	for _, reg := range listeners {
		reg.fn(online)
	}
}

// AddListener registers fn and returns an unsubscribe function that removes
// exactly this registration. Registering the same function twice yields two
// independent subscriptions.
func (o *Observer) AddListener(fn Listener) func() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.nextID++
	id := o.nextID
	o.listeners = append(o.listeners, registration{id: id, fn: fn})

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, reg := range o.listeners {
			if reg.id == id {
				o.listeners = append(o.listeners[:i], o.listeners[i+1:]...)
				return
			}
		}
	}
}

// RemoveListener removes every registration of fn.
func (o *Observer) RemoveListener(fn Listener) {
	ptr := reflect.ValueOf(fn).Pointer()

	o.mu.Lock()
	defer o.mu.Unlock()
	kept := o.listeners[:0]
	for _, reg := range o.listeners {
		if reflect.ValueOf(reg.fn).Pointer() != ptr {
			kept = append(kept, reg)
		}
	}
	o.listeners = kept
}

// ProbeFunc checks reachability of the remote backend. A nil error means
// online.
type ProbeFunc func(ctx context.Context) error

// Watch polls probe at the given interval and feeds the result into the
// observer until ctx is cancelled. It blocks; run it in its own goroutine.
func (o *Observer) Watch(ctx context.Context, probe ProbeFunc, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, interval)
			err := probe(probeCtx)
			cancel()
			o.SetOnline(err == nil)
		}
	}
}
