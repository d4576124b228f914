package dbus

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

// DefaultTimeout is the timeout used for D-Bus calls made without an explicit one.
var DefaultTimeout = 5 * time.Second

// CallWithTimeout calls method on obj, bounded by timeout (DefaultTimeout when <= 0).
func CallWithTimeout(obj dbus.BusObject, timeout time.Duration, method string, args ...interface{}) *dbus.Call {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	call := obj.CallWithContext(ctx, method, 0, args...)
	if call.Err != nil && errors.Is(call.Err, context.DeadlineExceeded) {
		call.Err = &TimeoutError{Method: method}
	}
	return call
}

// GetProperty retrieves a single property from a D-Bus object.
func GetProperty(obj dbus.BusObject, timeout time.Duration, iface, prop string) (dbus.Variant, error) {
	var v dbus.Variant
	call := CallWithTimeout(obj, timeout, PROP_GET, iface, prop)
	if call.Err != nil {
		return dbus.Variant{}, call.Err
	}
	if err := call.Store(&v); err != nil {
		return dbus.Variant{}, err
	}
	return v, nil
}

// SetProperty sets a single property on a D-Bus object.
func SetProperty(obj dbus.BusObject, timeout time.Duration, iface, prop string, value interface{}) error {
	return CallWithTimeout(obj, timeout, PROP_SET, iface, prop, dbus.MakeVariant(value)).Err
}

// GetAllProperties retrieves all properties of a D-Bus interface in a single call.
func GetAllProperties(obj dbus.BusObject, timeout time.Duration, iface string) (map[string]dbus.Variant, error) {
	var props map[string]dbus.Variant
	call := CallWithTimeout(obj, timeout, PROP_GET_ALL, iface)
	if call.Err != nil {
		return nil, call.Err
	}
	return props, call.Store(&props)
}

// GetObject returns a D-Bus object for the given service and object path.
func GetObject(conn *dbus.Conn, service string, path dbus.ObjectPath) dbus.BusObject {
	return conn.Object(service, path)
}

// AddMatchRule subscribes to a D-Bus signal via a match rule.
func AddMatchRule(conn *dbus.Conn, rule string) error {
	return conn.BusObject().Call(BUS_ADD_MATCH, 0, rule).Err
}

// RemoveMatchRule unsubscribes from a D-Bus signal match rule.
func RemoveMatchRule(conn *dbus.Conn, rule string) error {
	return conn.BusObject().Call(BUS_REMOVE_MATCH, 0, rule).Err
}

// PropertiesChangedRule builds the match rule for PropertiesChanged emitted by
// service at path for the given interface.
func PropertiesChangedRule(service string, path dbus.ObjectPath, iface string) string {
	parts := []string{
		"type='signal'",
		"interface='" + DBUS_PROP_IFACE + "'",
		"member='" + PROP_CHANGED_MEMBER + "'",
	}
	if service != "" {
		parts = append(parts, "sender='"+service+"'")
	}
	if path != "" {
		parts = append(parts, "path='"+string(path)+"'")
	}
	if iface != "" {
		parts = append(parts, "arg0='"+iface+"'")
	}
	return strings.Join(parts, ",")
}

// FilterSignal parses a PropertiesChanged D-Bus signal body.
// Returns changed properties map and interface name, or an error if malformed.
func FilterSignal(sig *dbus.Signal) (map[string]dbus.Variant, string, error) {
	if sig == nil {
		return nil, "", &SignalError{Reason: "channel closed"}
	}
	if len(sig.Body) < 2 {
		return nil, "", &SignalError{Reason: "body too short"}
	}
	iface, ok := sig.Body[0].(string)
	if !ok {
		return nil, "", &SignalError{Reason: "failed to parse interface name"}
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return nil, "", &SignalError{Reason: "body[1] is not map[string]Variant"}
	}
	return changed, iface, nil
}

// Invalidated returns the invalidated property names of a PropertiesChanged signal.
func Invalidated(sig *dbus.Signal) []string {
	if sig == nil || len(sig.Body) < 3 {
		return nil
	}
	names, _ := sig.Body[2].([]string)
	return names
}

// --- Variant extraction helpers ---

// ExtractString extracts a string from a dbus.Variant.
func ExtractString(v dbus.Variant) (string, bool) {
	val, ok := v.Value().(string)
	return val, ok
}

// ExtractBool extracts a bool from a dbus.Variant.
func ExtractBool(v dbus.Variant) (bool, bool) {
	val, ok := v.Value().(bool)
	return val, ok
}

// ExtractUint32 extracts a uint32 from a dbus.Variant.
func ExtractUint32(v dbus.Variant) (uint32, bool) {
	val, ok := v.Value().(uint32)
	return val, ok
}

// ExtractInt64 extracts any signed or unsigned integer from a dbus.Variant as an int64.
func ExtractInt64(v dbus.Variant) (int64, bool) {
	switch val := v.Value().(type) {
	case byte:
		return int64(val), true
	case int16:
		return int64(val), true
	case uint16:
		return int64(val), true
	case int32:
		return int64(val), true
	case uint32:
		return int64(val), true
	case int64:
		return val, true
	case uint64:
		return int64(val), true
	case int:
		return int64(val), true
	}
	return 0, false
}

// ExtractStrings extracts a string list from a dbus.Variant.
func ExtractStrings(v dbus.Variant) ([]string, bool) {
	val, ok := v.Value().([]string)
	return val, ok
}

// ExtractObjectPath extracts an object path from a dbus.Variant. Plain strings are accepted.
func ExtractObjectPath(v dbus.Variant) (dbus.ObjectPath, bool) {
	switch val := v.Value().(type) {
	case dbus.ObjectPath:
		return val, true
	case string:
		return dbus.ObjectPath(val), true
	}
	return "", false
}

// --- Map helpers (props map[string]dbus.Variant) ---

// MapString extracts a string from a props map by key.
func MapString(props map[string]dbus.Variant, key string) string {
	if v, ok := props[key]; ok {
		s, _ := ExtractString(v)
		return s
	}
	return ""
}

// MapBool extracts a bool from a props map by key.
func MapBool(props map[string]dbus.Variant, key string) bool {
	if v, ok := props[key]; ok {
		b, _ := ExtractBool(v)
		return b
	}
	return false
}

// MapBoolOK extracts a bool from a props map by key, with existence check.
func MapBoolOK(props map[string]dbus.Variant, key string) (bool, bool) {
	if v, ok := props[key]; ok {
		return ExtractBool(v)
	}
	return false, false
}

// MapInt64OK extracts an integer from a props map by key, with existence check.
func MapInt64OK(props map[string]dbus.Variant, key string) (int64, bool) {
	if v, ok := props[key]; ok {
		return ExtractInt64(v)
	}
	return 0, false
}

// MapStrings extracts a string list from a props map by key.
func MapStrings(props map[string]dbus.Variant, key string) []string {
	if v, ok := props[key]; ok {
		s, _ := ExtractStrings(v)
		return s
	}
	return nil
}

// MapObjectPath extracts an object path from a props map by key.
func MapObjectPath(props map[string]dbus.Variant, key string) dbus.ObjectPath {
	if v, ok := props[key]; ok {
		p, _ := ExtractObjectPath(v)
		return p
	}
	return ""
}

// Keys returns the sorted keys of a props map (useful for debug logging).
func Keys(props map[string]dbus.Variant) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
