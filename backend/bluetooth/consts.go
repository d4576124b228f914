package bluetooth

const (
	BLUEZ_SERVICE = "org.bluez"
	BLUEZ_ROOT    = "/org/bluez"

	AGENT_PATH       = "/org/odio/bluetooth/agent"
	AGENT_CAPABILITY = "KeyboardDisplay"

	DEVICE_PREFIX  = "dev_"
	ADAPTER_PREFIX = "hci"

	ERROR_CANCELED       = BLUEZ_SERVICE + ".Error.Canceled"
	ERROR_REJECTED       = BLUEZ_SERVICE + ".Error.Rejected"
	ERROR_ALREADY_EXISTS = BLUEZ_SERVICE + ".Error.AlreadyExists"
	ERROR_DOES_NOT_EXIST = BLUEZ_SERVICE + ".Error.DoesNotExist"

	// Largest passkey a Bluetooth peer accepts (six decimal digits).
	MAX_PASSKEY = 999999
	// Longest legacy PIN code.
	MAX_PINCODE_LEN = 16
)

// Device methods
const (
	METHOD_CONNECT            = "Connect"
	METHOD_DISCONNECT         = "Disconnect"
	METHOD_CONNECT_PROFILE    = "ConnectProfile"
	METHOD_DISCONNECT_PROFILE = "DisconnectProfile"
	METHOD_PAIR               = "Pair"
	METHOD_CANCEL_PAIRING     = "CancelPairing"
)

// Adapter methods
const (
	METHOD_REMOVE_DEVICE   = "RemoveDevice"
	METHOD_START_DISCOVERY = "StartDiscovery"
	METHOD_STOP_DISCOVERY  = "StopDiscovery"
)

// Agent manager methods
const (
	METHOD_REGISTER_AGENT        = "RegisterAgent"
	METHOD_UNREGISTER_AGENT      = "UnregisterAgent"
	METHOD_REQUEST_DEFAULT_AGENT = "RequestDefaultAgent"
)

// Device properties
const (
	PROP_ADAPTER           = "Adapter"
	PROP_ADDRESS           = "Address"
	PROP_ADDRESS_TYPE      = "AddressType"
	PROP_ALIAS             = "Alias"
	PROP_NAME              = "Name"
	PROP_ICON              = "Icon"
	PROP_CLASS             = "Class"
	PROP_APPEARANCE        = "Appearance"
	PROP_PAIRED            = "Paired"
	PROP_BONDED            = "Bonded"
	PROP_TRUSTED           = "Trusted"
	PROP_BLOCKED           = "Blocked"
	PROP_CONNECTED         = "Connected"
	PROP_SERVICES_RESOLVED = "ServicesResolved"
	PROP_LEGACY_PAIRING    = "LegacyPairing"
	PROP_RSSI              = "RSSI"
	PROP_TX_POWER          = "TxPower"
	PROP_UUIDS             = "UUIDs"
	PROP_MANUFACTURER_DATA = "ManufacturerData"
	PROP_MODALIAS          = "Modalias"
	PROP_PERCENTAGE        = "Percentage"
)

// AdapterState names the boolean adapter properties that can be toggled.
type AdapterState string

const (
	BT_STATE_POWERED      AdapterState = "Powered"
	BT_STATE_DISCOVERABLE AdapterState = "Discoverable"
	BT_STATE_PAIRABLE     AdapterState = "Pairable"
	BT_STATE_DISCOVERING  AdapterState = "Discovering"
)

func (s AdapterState) String() string {
	return string(s)
}

// ParseAdapterToggle maps a lower-case API name to a toggleable adapter state.
func ParseAdapterToggle(name string) (AdapterState, bool) {
	switch name {
	case "powered":
		return BT_STATE_POWERED, true
	case "discoverable":
		return BT_STATE_DISCOVERABLE, true
	case "pairable":
		return BT_STATE_PAIRABLE, true
	}
	return "", false
}
