package bluetooth

import (
	"strings"

	"github.com/godbus/dbus/v5"
)

// AddressFromID turns a device id such as dev_AA_BB_CC_DD_EE_FF into
// AA:BB:CC:DD:EE:FF.
func AddressFromID(id string) string {
	return strings.ReplaceAll(strings.TrimPrefix(id, DEVICE_PREFIX), "_", ":")
}

// IDFromAddress is the inverse of AddressFromID.
func IDFromAddress(address string) string {
	return DEVICE_PREFIX + strings.ReplaceAll(strings.ToUpper(address), ":", "_")
}

// AliasOf names the device at path for prompts. It never fails: unknown
// devices get an address built from the path.
func (r *Registry) AliasOf(path dbus.ObjectPath) string {
	id := leaf(path)
	if d, ok := r.Get(id); ok {
		if alias := d.Alias(); alias != "" {
			return alias
		}
	}
	if id == "" {
		return string(path)
	}
	return AddressFromID(id)
}
