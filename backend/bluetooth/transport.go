package bluetooth

import (
	"github.com/godbus/dbus/v5"
)

// PropertyHandler receives one PropertiesChanged notification. It always
// runs on the event loop.
type PropertyHandler func(changed map[string]dbus.Variant, invalidated []string)

// Subscription is an opaque handle for one installed signal handler.
type Subscription struct {
	id      int64
	path    dbus.ObjectPath
	iface   string
	rule    string
	handler PropertyHandler
}

func (s *Subscription) Path() dbus.ObjectPath { return s.path }

// Transport is everything the registry, plugins and agent need from the
// Bluetooth daemon.
type Transport interface {
	// QueryProperties returns all properties of the capability's interface at path.
	QueryProperties(path dbus.ObjectPath, c Capability) (map[string]dbus.Variant, error)
	GetProperty(path dbus.ObjectPath, c Capability, prop string) (dbus.Variant, error)
	SetProperty(path dbus.ObjectPath, c Capability, prop string, value interface{}) error
	// ToggleProperty flips a boolean property.
	ToggleProperty(path dbus.ObjectPath, c Capability, prop string) error

	// CallMethod issues the call without waiting. done, when not nil, is
	// posted to the event loop with the call result.
	CallMethod(path dbus.ObjectPath, c Capability, method string, done func(error), args ...interface{})
	// Call issues the call and waits for its reply body.
	Call(path dbus.ObjectPath, c Capability, method string, args ...interface{}) ([]interface{}, error)

	RegisterPropertySignal(path dbus.ObjectPath, c Capability, handler PropertyHandler) (*Subscription, error)
	// Unsubscribe releases a subscription. A second release of the same
	// handle returns ErrNotSubscribed.
	Unsubscribe(sub *Subscription) error

	// Interfaces lists the interfaces implemented at path.
	Interfaces(path dbus.ObjectPath) ([]string, error)
	// Adapters lists adapter ids such as "hci0".
	Adapters() ([]string, error)
	// DeviceIDs lists the device ids known under an adapter.
	DeviceIDs(adapter string) ([]string, error)
}
