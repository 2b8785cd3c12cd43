// Package viewport defines the contract between the session core and the
// embedding application's visibility machinery (browser intersection
// observation or equivalent). The core never measures visibility itself; it
// only reacts when the application reports that a rendered message became
// visible.
package viewport

import "sync"

// Observer is implemented by the embedding application. The core asks it to
// watch message elements; the application calls back through a Dispatcher
// when one becomes visible.
type Observer interface {
	Observe(messageID string)
	Unobserve(messageID string)
}

// Actions is what the session core exposes to visibility events: marking a
// visible message as seen and paginating when the oldest loaded message
// scrolls into view.
type Actions interface {
	OnVisible(messageID string)
}

// Dispatcher forwards visibility callbacks to the session exactly once per
// message, mirroring the unobserve-after-processing discipline the UI uses to
// avoid duplicate handling.
type Dispatcher struct {
	mu      sync.Mutex
	seen    map[string]bool
	obs     Observer
	actions Actions
}

func NewDispatcher(obs Observer, actions Actions) *Dispatcher {
	return &Dispatcher{
		seen:    make(map[string]bool),
		obs:     obs,
		actions: actions,
	}
}

// MarkVisible is invoked by the embedding application when an observed
// message element is fully visible.
func (d *Dispatcher) MarkVisible(messageID string) {
	d.mu.Lock()
	if d.seen[messageID] {
		d.mu.Unlock()
		return
	}
	d.seen[messageID] = true
	d.mu.Unlock()

	if d.obs != nil {
		d.obs.Unobserve(messageID)
	}
	d.actions.OnVisible(messageID)
}

// Reset forgets processed elements, used when the conversation changes and
// element ids start over.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	d.seen = make(map[string]bool)
	d.mu.Unlock()
}
