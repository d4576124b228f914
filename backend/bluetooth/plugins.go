package bluetooth

import (
	"github.com/b0bbywan/odio-bluetooth/logger"
)

// Plugin attaches per-device behavior to every connected device exposing a
// capability. Any callback may be nil.
type Plugin struct {
	// New runs once when a matching device joins the plugin.
	New func(d *Device)
	// Info contributes lines to the device's detail view.
	Info func(d *Device, sink Sink)
	// Remove runs once when the device leaves the plugin.
	Remove func(d *Device)
	// Cleanup runs when the plugin is unregistered.
	Cleanup func()
}

type pluginEntry struct {
	capability Capability
	plugin     Plugin
	devices    map[string]struct{}
}

// Plugins is the plugin table. Entries keep registration order, which is
// the order callbacks fire in. Only used from the event loop.
type Plugins struct {
	entries    []*pluginEntry
	implements func(d *Device, c Capability) bool
}

func NewPlugins() *Plugins {
	return &Plugins{}
}

func (p *Plugins) find(c Capability) (int, *pluginEntry) {
	for i, e := range p.entries {
		if e.capability == c {
			return i, e
		}
	}
	return -1, nil
}

// Register adds a plugin for c. Devices already connected are picked up by
// the next DevUpdate.
func (p *Plugins) Register(c Capability, plugin Plugin) error {
	if _, ok := InterfaceFor(c); !ok {
		return ErrCapabilityUnsupported
	}
	if _, e := p.find(c); e != nil {
		return &AlreadyRegisteredError{Capability: c}
	}
	p.entries = append(p.entries, &pluginEntry{
		capability: c,
		plugin:     plugin,
		devices:    make(map[string]struct{}),
	})
	logger.Debug("[bluetooth] plugin %s registered", c)
	return nil
}

// Unregister drops the plugin for c after running its cleanup.
func (p *Plugins) Unregister(c Capability) bool {
	i, e := p.find(c)
	if e == nil {
		return false
	}
	p.entries = append(p.entries[:i], p.entries[i+1:]...)
	if e.plugin.Cleanup != nil {
		e.plugin.Cleanup()
	}
	logger.Debug("[bluetooth] plugin %s unregistered", c)
	return true
}

// UnregisterAll drops every plugin, in registration order.
func (p *Plugins) UnregisterAll() {
	for len(p.entries) > 0 {
		p.Unregister(p.entries[0].capability)
	}
}

func (p *Plugins) Capabilities() []Capability {
	caps := make([]Capability, 0, len(p.entries))
	for _, e := range p.entries {
		caps = append(caps, e.capability)
	}
	return caps
}

// Has reports whether the plugin for c currently tracks device id.
func (p *Plugins) Has(c Capability, id string) bool {
	if _, e := p.find(c); e != nil {
		_, ok := e.devices[id]
		return ok
	}
	return false
}

// DevUpdate offers d to every plugin that does not track it yet. Calling it
// again for a tracked device does nothing.
func (p *Plugins) DevUpdate(d *Device) {
	for _, e := range p.entries {
		if _, ok := e.devices[d.ID]; ok {
			continue
		}
		if p.implements == nil || !p.implements(d, e.capability) {
			continue
		}
		e.devices[d.ID] = struct{}{}
		if e.plugin.New != nil {
			e.plugin.New(d)
		}
	}
}

// DevRemove detaches d from every plugin tracking it.
func (p *Plugins) DevRemove(d *Device) {
	for _, e := range p.entries {
		if _, ok := e.devices[d.ID]; !ok {
			continue
		}
		delete(e.devices, d.ID)
		if e.plugin.Remove != nil {
			e.plugin.Remove(d)
		}
	}
}

// InsertInfos asks each plugin tracking d for detail lines. Devices that are
// not connected get none.
func (p *Plugins) InsertInfos(d *Device, sink Sink) {
	if !d.Connected() {
		return
	}
	for _, e := range p.entries {
		if _, ok := e.devices[d.ID]; !ok {
			continue
		}
		if e.plugin.Info != nil {
			e.plugin.Info(d, sink)
		}
	}
}
