package bluetooth

import (
	"reflect"
	"slices"

	"github.com/godbus/dbus/v5"

	idbus "github.com/b0bbywan/odio-bluetooth/backend/internal/dbus"
	"github.com/b0bbywan/odio-bluetooth/cache"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

// ChangeFunc is called on the loop after a device record changed.
type ChangeFunc func(d *Device)

// Registry caches remote devices by id and keeps their property
// subscriptions in step with their pairing state. All methods must run on
// the event loop.
type Registry struct {
	transport Transport
	plugins   *Plugins
	devices   *cache.Cache[*Device]
	lastHook  HookID

	// OnAdded and OnRemoved are notified when a record enters or leaves the cache.
	OnAdded   func(d *Device)
	OnRemoved func(d *Device)
}

func NewRegistry(t Transport, plugins *Plugins) *Registry {
	r := &Registry{
		transport: t,
		plugins:   plugins,
		devices:   cache.New[*Device](0),
	}
	if plugins != nil {
		plugins.implements = func(d *Device, c Capability) bool {
			_, ok := r.Implements(d, c)
			return ok
		}
	}
	return r
}

func (r *Registry) Get(id string) (*Device, bool) {
	return r.devices.Get(id)
}

func (r *Registry) Len() int {
	return r.devices.Len()
}

// PathOf returns the object path of d, or "" while its adapter is unknown.
func (r *Registry) PathOf(d *Device) dbus.ObjectPath {
	adapter := d.AdapterPath()
	if adapter == "" {
		return ""
	}
	return dbus.ObjectPath(string(adapter) + "/" + d.ID)
}

// Add queries the device under adapter and caches it. Adding an id that is
// already cached behaves like Update.
func (r *Registry) Add(id, adapter string, onChange ChangeFunc) error {
	props, err := r.transport.QueryProperties(Path(adapter, id), CapDevice)
	if err != nil {
		return err
	}
	if _, ok := r.Get(id); ok {
		r.Update(id, props, onChange)
		return nil
	}

	d := newDevice(id, props)
	r.devices.Set(id, d)
	logger.Debug("[bluetooth] device %s added (%s)", id, d.Alias())
	r.syncSubscription(d, onChange)
	if r.OnAdded != nil {
		r.OnAdded(d)
	}
	if d.Connected() {
		r.plugins.DevUpdate(d)
	}
	return nil
}

// Update replaces the cached properties of id wholesale. Unknown ids are ignored.
func (r *Registry) Update(id string, props map[string]dbus.Variant, onChange ChangeFunc) {
	d, ok := r.Get(id)
	if !ok {
		return
	}
	changed := !reflect.DeepEqual(d.Properties, props)
	d.Properties = copyProperties(props)
	r.syncSubscription(d, onChange)
	// Unpaired devices get no push updates, so sweeps carry their
	// connection changes to the plugins.
	if d.Connected() {
		r.plugins.DevUpdate(d)
	} else {
		r.plugins.DevRemove(d)
	}
	if changed && onChange != nil {
		onChange(d)
	}
}

// Remove drops id, releasing its subscription and notifying plugins first.
func (r *Registry) Remove(id string) {
	d, ok := r.Get(id)
	if !ok {
		return
	}
	r.release(d)
	r.plugins.DevRemove(d)
	r.devices.Delete(id)
	logger.Debug("[bluetooth] device %s removed", id)
	if r.OnRemoved != nil {
		r.OnRemoved(d)
	}
}

// Clear removes every cached device.
func (r *Registry) Clear() {
	for _, id := range r.devices.Keys() {
		r.Remove(id)
	}
}

// syncSubscription installs a subscription for paired devices and releases
// it for unpaired ones.
func (r *Registry) syncSubscription(d *Device, onChange ChangeFunc) {
	switch {
	case d.Paired() && d.subscription == nil:
		path := r.PathOf(d)
		if path == "" {
			logger.Debug("[bluetooth] device %s has no adapter yet, not subscribing", d.ID)
			return
		}
		id := d.ID
		sub, err := r.transport.RegisterPropertySignal(path, CapDevice, func(changed map[string]dbus.Variant, invalidated []string) {
			r.handleChange(id, changed, invalidated, onChange)
		})
		if err != nil {
			logger.Warn("[bluetooth] failed to subscribe to %s: %v", path, err)
			return
		}
		d.subscription = sub
	case !d.Paired() && d.subscription != nil:
		r.release(d)
	}
}

func (r *Registry) release(d *Device) {
	sub := d.subscription
	if sub == nil {
		return
	}
	d.subscription = nil
	if err := r.transport.Unsubscribe(sub); err != nil {
		logger.Debug("[bluetooth] releasing subscription of %s: %v", d.ID, err)
	}
}

// handleChange applies one PropertiesChanged notification. The record is
// looked up again because it may have been removed since subscribing.
func (r *Registry) handleChange(id string, changed map[string]dbus.Variant, invalidated []string, onChange ChangeFunc) {
	d, ok := r.Get(id)
	if !ok {
		return
	}
	for _, prop := range idbus.Keys(changed) {
		value := changed[prop]
		d.Properties[prop] = value
		switch prop {
		case PROP_CONNECTED, PROP_SERVICES_RESOLVED:
			if on, ok := idbus.ExtractBool(value); ok {
				if on {
					r.plugins.DevUpdate(d)
				} else {
					r.plugins.DevRemove(d)
				}
			}
		}
		d.runHooks(prop, value)
	}
	for _, prop := range invalidated {
		delete(d.Properties, prop)
	}
	if !d.Paired() {
		r.release(d)
	}
	if onChange != nil {
		onChange(d)
	}
}

func (r *Registry) belongs(d *Device, adapter string) bool {
	path := d.AdapterPath()
	return path == "" || leaf(path) == adapter
}

// Reconcile brings the cache in line with the devices the daemon lists
// under adapter. Failures on one device are logged and skipped.
func (r *Registry) Reconcile(adapter string, onChange ChangeFunc) error {
	ids, err := r.transport.DeviceIDs(adapter)
	if err != nil {
		return err
	}

	for _, id := range r.devices.Keys() {
		d, ok := r.Get(id)
		if ok && r.belongs(d, adapter) && !slices.Contains(ids, id) {
			r.Remove(id)
		}
	}

	for _, id := range ids {
		if _, ok := r.Get(id); !ok {
			if err := r.Add(id, adapter, onChange); err != nil {
				logger.Warn("[bluetooth] skipping device %s: %v", id, err)
			}
			continue
		}
		props, err := r.transport.QueryProperties(Path(adapter, id), CapDevice)
		if err != nil {
			logger.Warn("[bluetooth] skipping device %s: %v", id, err)
			continue
		}
		r.Update(id, props, onChange)
	}
	return nil
}

// UpdateAll reconciles every adapter and forgets devices of adapters that
// disappeared.
func (r *Registry) UpdateAll(onChange ChangeFunc) error {
	adapters, err := r.transport.Adapters()
	if err != nil {
		return err
	}
	for _, id := range r.devices.Keys() {
		d, ok := r.Get(id)
		if !ok {
			continue
		}
		if adapter := d.AdapterPath(); adapter != "" && !slices.Contains(adapters, leaf(adapter)) {
			r.Remove(id)
		}
	}
	for _, adapter := range adapters {
		if err := r.Reconcile(adapter, onChange); err != nil {
			logger.Warn("[bluetooth] failed to scan adapter %s: %v", adapter, err)
		}
	}
	return nil
}

// Implements returns the interface name of c when d exposes it.
func (r *Registry) Implements(d *Device, c Capability) (string, bool) {
	iface, ok := InterfaceFor(c)
	if !ok {
		return "", false
	}
	path := r.PathOf(d)
	if path == "" {
		return "", false
	}
	ifaces, err := r.transport.Interfaces(path)
	if err != nil {
		logger.Debug("[bluetooth] cannot introspect %s: %v", path, err)
		return "", false
	}
	if !slices.Contains(ifaces, iface) {
		return "", false
	}
	return iface, true
}

// Map calls fn for each device accepted by filter, in id order.
func (r *Registry) Map(fn func(d *Device), filter func(d *Device) bool) {
	r.devices.Range(func(_ string, d *Device) bool {
		if filter == nil || filter(d) {
			fn(d)
		}
		return true
	})
}

// AddPropertyHook runs fn whenever prop of device id changes.
func (r *Registry) AddPropertyHook(id, prop string, fn PropertyHook) (HookID, error) {
	d, ok := r.Get(id)
	if !ok {
		return 0, &DeviceNotFoundError{ID: id}
	}
	r.lastHook++
	d.hooks[prop] = append(d.hooks[prop], propertyHook{id: r.lastHook, fn: fn})
	return r.lastHook, nil
}

// RemovePropertyHook reports whether the hook was installed.
func (r *Registry) RemovePropertyHook(id, prop string, hook HookID) bool {
	d, ok := r.Get(id)
	if !ok {
		return false
	}
	hooks := d.hooks[prop]
	for i, h := range hooks {
		if h.id == hook {
			d.hooks[prop] = slices.Delete(hooks, i, i+1)
			return true
		}
	}
	return false
}
