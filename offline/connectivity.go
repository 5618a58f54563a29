package offline

import (
	"sync"
)

// Connectivity is the global connectivity observer. It fires the onOnline
// callback exactly once per offline→online transition; repeated SetOnline
// calls with the same value are no-ops.
type Connectivity struct {
	mu       sync.Mutex
	online   bool
	onOnline func()
}

// NewConnectivity creates an observer that starts in the online state.
func NewConnectivity(onOnline func()) *Connectivity {
	return &Connectivity{online: true, onOnline: onOnline}
}

// SetOnline records a connectivity change, invoking the callback on each
// offline→online transition.
func (c *Connectivity) SetOnline(online bool) {
	c.mu.Lock()
	wasOnline := c.online
	c.online = online
	cb := c.onOnline
	c.mu.Unlock()

	if online && !wasOnline && cb != nil {
		cb()
	}
}

// Online reports the current connectivity state.
func (c *Connectivity) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}
