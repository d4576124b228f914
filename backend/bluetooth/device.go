package bluetooth

import (
	"github.com/godbus/dbus/v5"

	idbus "github.com/b0bbywan/odio-bluetooth/backend/internal/dbus"
	"github.com/b0bbywan/odio-bluetooth/decode"
)

// HookID identifies an installed property hook.
type HookID uint64

// PropertyHook runs after a property of a device changed.
type PropertyHook func(d *Device, value dbus.Variant)

type propertyHook struct {
	id HookID
	fn PropertyHook
}

// Device is one cached remote device. It is only touched from the event loop.
type Device struct {
	ID         string
	Properties map[string]dbus.Variant

	subscription *Subscription
	hooks        map[string][]propertyHook
}

func newDevice(id string, props map[string]dbus.Variant) *Device {
	return &Device{
		ID:         id,
		Properties: copyProperties(props),
		hooks:      make(map[string][]propertyHook),
	}
}

func copyProperties(props map[string]dbus.Variant) map[string]dbus.Variant {
	out := make(map[string]dbus.Variant, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

func (d *Device) Address() string { return idbus.MapString(d.Properties, PROP_ADDRESS) }
func (d *Device) Name() string    { return idbus.MapString(d.Properties, PROP_NAME) }
func (d *Device) Icon() string    { return idbus.MapString(d.Properties, PROP_ICON) }
func (d *Device) Paired() bool    { return idbus.MapBool(d.Properties, PROP_PAIRED) }
func (d *Device) Trusted() bool   { return idbus.MapBool(d.Properties, PROP_TRUSTED) }
func (d *Device) Blocked() bool   { return idbus.MapBool(d.Properties, PROP_BLOCKED) }
func (d *Device) Connected() bool { return idbus.MapBool(d.Properties, PROP_CONNECTED) }
func (d *Device) UUIDs() []string { return idbus.MapStrings(d.Properties, PROP_UUIDS) }

func (d *Device) Alias() string {
	if alias := idbus.MapString(d.Properties, PROP_ALIAS); alias != "" {
		return alias
	}
	return d.Name()
}

func (d *Device) ServicesResolved() bool {
	return idbus.MapBool(d.Properties, PROP_SERVICES_RESOLVED)
}

func (d *Device) Class() uint32 {
	v, _ := idbus.MapInt64OK(d.Properties, PROP_CLASS)
	return uint32(v)
}

// AdapterPath is empty until the daemon reported the owning adapter.
func (d *Device) AdapterPath() dbus.ObjectPath {
	return idbus.MapObjectPath(d.Properties, PROP_ADAPTER)
}

// Subscribed reports whether a property subscription is installed.
func (d *Device) Subscribed() bool {
	return d.subscription != nil
}

func (d *Device) runHooks(prop string, value dbus.Variant) {
	for _, h := range d.hooks[prop] {
		h.fn(d, value)
	}
}

// DeviceInfo is the serializable view of a device.
type DeviceInfo struct {
	ID               string   `json:"id"`
	Address          string   `json:"address"`
	Alias            string   `json:"alias"`
	Name             string   `json:"name,omitempty"`
	Icon             string   `json:"icon,omitempty"`
	Type             string   `json:"type"`
	Class            uint32   `json:"class,omitempty"`
	Adapter          string   `json:"adapter,omitempty"`
	Paired           bool     `json:"paired"`
	Trusted          bool     `json:"trusted"`
	Blocked          bool     `json:"blocked"`
	Connected        bool     `json:"connected"`
	ServicesResolved bool     `json:"services_resolved"`
	RSSI             *int16   `json:"rssi,omitempty"`
	Services         []string `json:"services,omitempty"`
}

func (d *Device) Info() DeviceInfo {
	info := DeviceInfo{
		ID:               d.ID,
		Address:          d.Address(),
		Alias:            d.Alias(),
		Name:             d.Name(),
		Icon:             d.Icon(),
		Type:             decode.DeviceType(d.Class(), d.Icon()),
		Class:            d.Class(),
		Adapter:          leaf(d.AdapterPath()),
		Paired:           d.Paired(),
		Trusted:          d.Trusted(),
		Blocked:          d.Blocked(),
		Connected:        d.Connected(),
		ServicesResolved: d.ServicesResolved(),
	}
	if info.Address == "" {
		info.Address = AddressFromID(d.ID)
	}
	if rssi, ok := idbus.MapInt64OK(d.Properties, PROP_RSSI); ok {
		v := int16(rssi)
		info.RSSI = &v
	}
	for _, u := range d.UUIDs() {
		info.Services = append(info.Services, decode.ServiceName(u))
	}
	return info
}
