package systemd

import (
	"context"
	"errors"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"

	"github.com/b0bbywan/odio-bluetooth/cache"
	"github.com/b0bbywan/odio-bluetooth/config"
	"github.com/b0bbywan/odio-bluetooth/events"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

var ErrUnitUnknown = errors.New("systemd: unit state not loaded")

// New connects to the system manager. onState receives daemon start and
// stop transitions.
func New(ctx context.Context, config *config.SystemdConfig, onState StateFunc) (*SystemdBackend, error) {
	if config == nil || !config.Enabled {
		return nil, nil
	}
	if config.Unit == "" {
		logger.Debug("[systemd] no unit configured, disabling backend")
		return nil, nil
	}

	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, err
	}

	return newBackend(ctx, conn, config, onState), nil
}

func newBackend(ctx context.Context, conn *dbus.Conn, config *config.SystemdConfig, onState StateFunc) *SystemdBackend {
	return &SystemdBackend{
		conn:    conn,
		ctx:     ctx,
		config:  config,
		cache:   cache.New[Unit](0), // TTL=0 = no expiration
		onState: onState,
		events:  make(chan events.Event, 8),
	}
}

// Start loads the unit state and starts the listener.
func (s *SystemdBackend) Start() error {
	logger.Debug("[systemd] starting backend for %s", s.config.Unit)

	unit, err := s.loadUnit(s.ctx)
	if err != nil {
		return err
	}

	s.listener = NewListener(s)
	s.listener.seed(unit.Active())
	if err := s.listener.Start(); err != nil {
		return err
	}

	logger.Info("[systemd] watching %s (%s)", unit.Name, unit.ActiveState)
	return nil
}

func (s *SystemdBackend) Close() {
	if s.listener != nil {
		s.listener.Stop()
		s.listener = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// Events streams daemon state changes.
func (s *SystemdBackend) Events() <-chan events.Event {
	return s.events
}

func (s *SystemdBackend) notify(e events.Event) {
	select {
	case s.events <- e:
	default:
		logger.Warn("[systemd] event channel full, dropping %s", e.Type)
	}
}

// Unit returns the cached state of the watched unit.
func (s *SystemdBackend) Unit() (Unit, error) {
	if unit, ok := s.cache.Get(s.config.Unit); ok {
		return unit, nil
	}
	return Unit{}, ErrUnitUnknown
}

// loadUnit reads the unit through ListUnitsByNames, which reports units
// that are not loaded too.
func (s *SystemdBackend) loadUnit(ctx context.Context) (Unit, error) {
	start := time.Now()
	units, err := s.conn.ListUnitsByNamesContext(ctx, []string{s.config.Unit})
	if err != nil {
		return Unit{}, err
	}

	unit := Unit{Name: s.config.Unit}
	for _, u := range units {
		if u.Name != s.config.Unit || u.LoadState != "loaded" {
			continue
		}
		unit.Exists = true
		unit.ActiveState = u.ActiveState
		unit.SubState = u.SubState
		unit.Running = u.SubState == "running"
		unit.Description = u.Description

		enabled, err := s.conn.GetUnitPropertyContext(ctx, u.Name, "UnitFileState")
		if err != nil {
			logger.Warn("[systemd] failed to get %s UnitFileState: %v", u.Name, err)
		} else if state, ok := enabled.Value.Value().(string); ok {
			unit.Enabled = state == "enabled"
		}
	}
	logger.Debug("[systemd] loaded %s in %s", unit.Name, time.Since(start))

	s.cache.Set(unit.Name, unit)
	return unit, nil
}

// Refresh reloads the unit from systemd and updates the cache.
func (s *SystemdBackend) Refresh(ctx context.Context) (Unit, error) {
	props, err := s.conn.GetUnitPropertiesContext(ctx, s.config.Unit)
	if err != nil {
		logger.Debug("[systemd] failed to get %s unit properties: %v", s.config.Unit, err)
		props = nil
	}
	unit := unitFromProps(s.config.Unit, props)
	s.cache.Set(unit.Name, unit)
	return unit, nil
}

// apply records a new SubState and reports whether the unit changed.
func (s *SystemdBackend) apply(unit Unit) bool {
	prev, ok := s.cache.Get(unit.Name)
	s.cache.Set(unit.Name, unit)
	return !ok || prev != unit
}

func unitFromProps(name string, props map[string]interface{}) Unit {
	unit := Unit{Name: name}

	loadState, _ := props["LoadState"].(string)
	if props == nil || loadState != "loaded" {
		return unit
	}

	unit.Exists = true
	unit.ActiveState, _ = props["ActiveState"].(string)
	unit.SubState, _ = props["SubState"].(string)
	unit.Running = unit.ActiveState == "active" && unit.SubState == "running"
	unit.Enabled = props["UnitFileState"] == "enabled"
	if desc, ok := props["Description"].(string); ok {
		unit.Description = desc
	}
	return unit
}
