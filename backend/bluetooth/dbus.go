package bluetooth

import (
	"context"
	"encoding/xml"
	"sort"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	idbus "github.com/b0bbywan/odio-bluetooth/backend/internal/dbus"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

// dbusTransport talks to bluetoothd over the system bus.
type dbusTransport struct {
	conn     *dbus.Conn
	timeout  time.Duration
	dispatch func(func()) bool
	router   *signalRouter
	signals  chan *dbus.Signal
}

func newDBusTransport(conn *dbus.Conn, timeout time.Duration, dispatch func(func()) bool) *dbusTransport {
	return &dbusTransport{
		conn:     conn,
		timeout:  timeout,
		dispatch: dispatch,
		router:   newSignalRouter(dispatch),
		signals:  make(chan *dbus.Signal, 64),
	}
}

// start attaches the signal router to the connection.
func (t *dbusTransport) start(ctx context.Context) {
	t.conn.Signal(t.signals)
	go func() {
		t.router.listen(ctx, t.signals)
		t.conn.RemoveSignal(t.signals)
	}()
}

func (t *dbusTransport) object(path dbus.ObjectPath) dbus.BusObject {
	return idbus.GetObject(t.conn, BLUEZ_SERVICE, path)
}

func (t *dbusTransport) QueryProperties(path dbus.ObjectPath, c Capability) (map[string]dbus.Variant, error) {
	iface, ok := InterfaceFor(c)
	if !ok {
		return nil, ErrCapabilityUnsupported
	}
	props, err := idbus.GetAllProperties(t.object(path), t.timeout, iface)
	if err != nil {
		// Any failure here means the object or daemon cannot answer.
		return nil, wrapUnavailable(err, "query-properties", path)
	}
	return props, nil
}

func (t *dbusTransport) GetProperty(path dbus.ObjectPath, c Capability, prop string) (dbus.Variant, error) {
	iface, ok := InterfaceFor(c)
	if !ok {
		return dbus.Variant{}, ErrCapabilityUnsupported
	}
	v, err := idbus.GetProperty(t.object(path), t.timeout, iface, prop)
	if err != nil {
		return dbus.Variant{}, wrapCall(err, "get-property", path)
	}
	return v, nil
}

func (t *dbusTransport) SetProperty(path dbus.ObjectPath, c Capability, prop string, value interface{}) error {
	iface, ok := InterfaceFor(c)
	if !ok {
		return ErrCapabilityUnsupported
	}
	if err := idbus.SetProperty(t.object(path), t.timeout, iface, prop, value); err != nil {
		return wrapCall(err, "set-property", path)
	}
	return nil
}

func (t *dbusTransport) ToggleProperty(path dbus.ObjectPath, c Capability, prop string) error {
	v, err := t.GetProperty(path, c, prop)
	if err != nil {
		return err
	}
	current, ok := idbus.ExtractBool(v)
	if !ok {
		return &ValidationError{Field: prop, Reason: "not a boolean property"}
	}
	return t.SetProperty(path, c, prop, !current)
}

func (t *dbusTransport) CallMethod(path dbus.ObjectPath, c Capability, method string, done func(error), args ...interface{}) {
	iface, ok := InterfaceFor(c)
	if !ok {
		if done != nil {
			t.dispatch(func() { done(ErrCapabilityUnsupported) })
		}
		return
	}
	go func() {
		call := idbus.CallWithTimeout(t.object(path), t.timeout, iface+"."+method, args...)
		err := call.Err
		if err != nil {
			err = wrapCall(err, method, path)
			logger.Debug("[bluetooth] %s on %s failed: %v", method, path, call.Err)
		}
		if done != nil {
			t.dispatch(func() { done(err) })
		}
	}()
}

func (t *dbusTransport) Call(path dbus.ObjectPath, c Capability, method string, args ...interface{}) ([]interface{}, error) {
	iface, ok := InterfaceFor(c)
	if !ok {
		return nil, ErrCapabilityUnsupported
	}
	call := idbus.CallWithTimeout(t.object(path), t.timeout, iface+"."+method, args...)
	if call.Err != nil {
		return nil, wrapCall(call.Err, method, path)
	}
	return call.Body, nil
}

func (t *dbusTransport) RegisterPropertySignal(path dbus.ObjectPath, c Capability, handler PropertyHandler) (*Subscription, error) {
	iface, ok := InterfaceFor(c)
	if !ok {
		return nil, ErrCapabilityUnsupported
	}
	rule := idbus.PropertiesChangedRule(BLUEZ_SERVICE, path, iface)
	if err := idbus.AddMatchRule(t.conn, rule); err != nil {
		return nil, wrapCall(err, "add-match", path)
	}
	return t.router.add(path, iface, rule, handler), nil
}

func (t *dbusTransport) Unsubscribe(sub *Subscription) error {
	if !t.router.remove(sub) {
		return ErrNotSubscribed
	}
	if err := idbus.RemoveMatchRule(t.conn, sub.rule); err != nil {
		// The handler is already gone; a stale match only costs bus traffic.
		logger.Debug("[bluetooth] failed to remove match rule for %s: %v", sub.path, err)
	}
	return nil
}

func (t *dbusTransport) introspect(path dbus.ObjectPath) (*introspect.Node, error) {
	var data string
	call := idbus.CallWithTimeout(t.object(path), t.timeout, idbus.INTROSPECTABLE+".Introspect")
	if call.Err != nil {
		return nil, wrapCall(call.Err, "introspect", path)
	}
	if err := call.Store(&data); err != nil {
		return nil, wrapCall(err, "introspect", path)
	}
	var node introspect.Node
	if err := xml.NewDecoder(strings.NewReader(data)).Decode(&node); err != nil {
		return nil, wrapCall(err, "introspect", path)
	}
	return &node, nil
}

func (t *dbusTransport) Interfaces(path dbus.ObjectPath) ([]string, error) {
	node, err := t.introspect(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(node.Interfaces))
	for _, iface := range node.Interfaces {
		names = append(names, iface.Name)
	}
	return names, nil
}

func (t *dbusTransport) children(path dbus.ObjectPath, prefix string) ([]string, error) {
	node, err := t.introspect(path)
	if err != nil {
		return nil, err
	}
	return childNames(node, prefix), nil
}

func (t *dbusTransport) Adapters() ([]string, error) {
	return t.children(Path(), ADAPTER_PREFIX)
}

func (t *dbusTransport) DeviceIDs(adapter string) ([]string, error) {
	return t.children(Path(adapter), DEVICE_PREFIX)
}

func childNames(node *introspect.Node, prefix string) []string {
	names := make([]string, 0, len(node.Children))
	for _, child := range node.Children {
		if strings.HasPrefix(child.Name, prefix) {
			names = append(names, child.Name)
		}
	}
	sort.Strings(names)
	return names
}
