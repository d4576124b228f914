package bluetooth

import (
	"strings"

	"github.com/godbus/dbus/v5"

	idbus "github.com/b0bbywan/odio-bluetooth/backend/internal/dbus"
)

// Capability tags one remote interface.
type Capability string

const (
	CapAdapter        Capability = "adapter"
	CapDevice         Capability = "device"
	CapAgent          Capability = "agent"
	CapAgentManager   Capability = "agent-manager"
	CapProfileManager Capability = "profile-manager"
	CapProperties     Capability = "properties"
	CapIntrospectable Capability = "introspectable"
	CapBattery        Capability = "battery"
	CapInput          Capability = "input"
	CapMediaControl   Capability = "media-control"
	CapMediaPlayer    Capability = "media-player"
	CapNetwork        Capability = "network"
	CapGattService    Capability = "gatt-service"
)

var capabilityInterfaces = map[Capability]string{
	CapAdapter:        BLUEZ_SERVICE + ".Adapter1",
	CapDevice:         BLUEZ_SERVICE + ".Device1",
	CapAgent:          BLUEZ_SERVICE + ".Agent1",
	CapAgentManager:   BLUEZ_SERVICE + ".AgentManager1",
	CapProfileManager: BLUEZ_SERVICE + ".ProfileManager1",
	CapProperties:     idbus.DBUS_PROP_IFACE,
	CapIntrospectable: idbus.INTROSPECTABLE,
	CapBattery:        BLUEZ_SERVICE + ".Battery1",
	CapInput:          BLUEZ_SERVICE + ".Input1",
	CapMediaControl:   BLUEZ_SERVICE + ".MediaControl1",
	CapMediaPlayer:    BLUEZ_SERVICE + ".MediaPlayer1",
	CapNetwork:        BLUEZ_SERVICE + ".Network1",
	CapGattService:    BLUEZ_SERVICE + ".GattService1",
}

// InterfaceFor resolves a capability to its interface name. The boolean is
// false for capabilities this table does not know, which callers treat as
// "feature not present".
func InterfaceFor(c Capability) (string, bool) {
	iface, ok := capabilityInterfaces[c]
	return iface, ok
}

func (c Capability) String() string {
	return string(c)
}

// Path joins the BlueZ root with nodes, e.g. Path("hci0", "dev_AA_BB") is
// /org/bluez/hci0/dev_AA_BB. Empty nodes are skipped.
func Path(nodes ...string) dbus.ObjectPath {
	var b strings.Builder
	b.WriteString(BLUEZ_ROOT)
	for _, n := range nodes {
		n = strings.Trim(n, "/")
		if n == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(n)
	}
	return dbus.ObjectPath(b.String())
}

// leaf returns the last segment of an object path.
func leaf(p dbus.ObjectPath) string {
	s := strings.TrimRight(string(p), "/")
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return s
}
