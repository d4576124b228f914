package bluetooth

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	idbus "github.com/b0bbywan/odio-bluetooth/backend/internal/dbus"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

// batteryPlugin tracks the charge level of connected devices exposing Battery1.
type batteryPlugin struct {
	registry  *Registry
	transport Transport
	notify    func(d *Device)

	subs   map[string]*Subscription
	levels map[string]int64
}

func newBatteryPlugin(r *Registry, t Transport, notify func(d *Device)) *batteryPlugin {
	return &batteryPlugin{
		registry:  r,
		transport: t,
		notify:    notify,
		subs:      make(map[string]*Subscription),
		levels:    make(map[string]int64),
	}
}

func (b *batteryPlugin) Plugin() Plugin {
	return Plugin{
		New:     b.add,
		Info:    b.info,
		Remove:  b.remove,
		Cleanup: b.cleanup,
	}
}

// Level returns the last known percentage of device id.
func (b *batteryPlugin) Level(id string) (int64, bool) {
	lvl, ok := b.levels[id]
	return lvl, ok
}

func (b *batteryPlugin) add(d *Device) {
	path := b.registry.PathOf(d)
	if path == "" {
		return
	}
	if props, err := b.transport.QueryProperties(path, CapBattery); err != nil {
		logger.Debug("[bluetooth] no battery level for %s: %v", d.ID, err)
	} else if lvl, ok := idbus.MapInt64OK(props, PROP_PERCENTAGE); ok {
		b.levels[d.ID] = lvl
	}

	if _, ok := b.subs[d.ID]; ok {
		return
	}
	id := d.ID
	sub, err := b.transport.RegisterPropertySignal(path, CapBattery, func(changed map[string]dbus.Variant, _ []string) {
		lvl, ok := idbus.MapInt64OK(changed, PROP_PERCENTAGE)
		if !ok {
			return
		}
		b.levels[id] = lvl
		logger.Debug("[bluetooth] battery of %s at %d%%", id, lvl)
		if dev, ok := b.registry.Get(id); ok && b.notify != nil {
			b.notify(dev)
		}
	})
	if err != nil {
		logger.Warn("[bluetooth] failed to watch battery of %s: %v", d.ID, err)
		return
	}
	b.subs[d.ID] = sub
}

func (b *batteryPlugin) info(d *Device, sink Sink) {
	if lvl, ok := b.levels[d.ID]; ok {
		sink.Insert("Battery", fmt.Sprintf("%d%%", lvl))
	}
}

func (b *batteryPlugin) release(id string) {
	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	if err := b.transport.Unsubscribe(sub); err != nil {
		logger.Debug("[bluetooth] releasing battery subscription of %s: %v", id, err)
	}
}

func (b *batteryPlugin) remove(d *Device) {
	b.release(d.ID)
	delete(b.levels, d.ID)
}

func (b *batteryPlugin) cleanup() {
	for id := range b.subs {
		b.release(id)
	}
	clear(b.levels)
}
