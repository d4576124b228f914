package systemd

import (
	"context"

	"github.com/coreos/go-systemd/v22/dbus"

	"github.com/b0bbywan/odio-bluetooth/events"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

func NewListener(backend *SystemdBackend) *Listener {
	ctx, cancel := context.WithCancel(backend.ctx)
	return &Listener{
		backend: backend,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// seed sets the state transitions are computed from.
func (l *Listener) seed(active bool) {
	l.mu.Lock()
	l.active = &active
	l.mu.Unlock()
}

// Start subscribes to SubState changes (native D-Bus signals, no polling).
func (l *Listener) Start() error {
	if err := l.backend.conn.Subscribe(); err != nil {
		return err
	}

	updateCh := make(chan *dbus.SubStateUpdate, 10)
	errCh := make(chan error, 1)
	l.backend.conn.SetSubStateSubscriber(updateCh, errCh)

	go l.listen(updateCh, errCh)

	logger.Debug("[systemd] listener started (signal-based)")
	return nil
}

func (l *Listener) listen(updateCh <-chan *dbus.SubStateUpdate, errCh <-chan error) {
	for {
		select {
		case <-l.ctx.Done():
			return

		case err, ok := <-errCh:
			if !ok {
				return
			}
			logger.Warn("[systemd] listener error: %v", err)

		case update, ok := <-updateCh:
			if !ok {
				return
			}
			if update.UnitName != l.backend.config.Unit {
				continue
			}
			logger.Debug("[systemd] unit changed: %s -> %s", update.UnitName, update.SubState)
			unit, err := l.backend.Refresh(l.ctx)
			if err != nil {
				logger.Warn("[systemd] failed to refresh %s: %v", update.UnitName, err)
				continue
			}
			l.handle(unit)
		}
	}
}

// handle publishes unit changes and reports active transitions. A unit
// cycling through intermediate SubStates reports each flip only once.
func (l *Listener) handle(unit Unit) {
	if l.backend.apply(unit) {
		l.backend.notify(events.Event{Type: events.TypeDaemonUpdated, Data: unit})
	}

	active := unit.Active()
	l.mu.Lock()
	changed := l.active == nil || *l.active != active
	l.active = &active
	l.mu.Unlock()

	if !changed {
		return
	}
	logger.Info("[systemd] %s is now %s", unit.Name, unit.ActiveState)
	if l.backend.onState != nil {
		l.backend.onState(active)
	}
}

func (l *Listener) Stop() {
	logger.Debug("[systemd] stopping listener")
	if err := l.backend.conn.Unsubscribe(); err != nil {
		logger.Debug("[systemd] unsubscribe: %v", err)
	}
	l.cancel()
}
