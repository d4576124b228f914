package systemd

import (
	"context"
	"sync"

	"github.com/coreos/go-systemd/v22/dbus"

	"github.com/b0bbywan/odio-bluetooth/cache"
	"github.com/b0bbywan/odio-bluetooth/config"
	"github.com/b0bbywan/odio-bluetooth/events"
)

// StateFunc is called when the watched unit becomes active or inactive.
type StateFunc func(active bool)

// Listener follows the watched unit through SubState signals.
type Listener struct {
	backend *SystemdBackend
	ctx     context.Context
	cancel  context.CancelFunc

	// last known active flag, to report transitions only
	mu     sync.Mutex
	active *bool
}

type SystemdBackend struct {
	conn   *dbus.Conn
	ctx    context.Context
	config *config.SystemdConfig

	// permanent cache (no expiration), keyed by unit name
	cache *cache.Cache[Unit]

	listener *Listener
	onState  StateFunc

	events chan events.Event
}

// Unit is the state of the daemon unit.
type Unit struct {
	Name        string `json:"name"`
	ActiveState string `json:"active_state,omitempty"`
	SubState    string `json:"sub_state,omitempty"`
	Running     bool   `json:"running"`
	Enabled     bool   `json:"enabled"`
	Exists      bool   `json:"exists"`
	Description string `json:"description,omitempty"`
}

// Active reports whether the daemon is serving requests.
func (u Unit) Active() bool {
	return u.ActiveState == "active" || u.ActiveState == "reloading"
}
