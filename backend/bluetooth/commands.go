package bluetooth

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	idbus "github.com/b0bbywan/odio-bluetooth/backend/internal/dbus"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

// Status summarizes the first adapter.
type Status struct {
	Adapter      string `json:"adapter"`
	Address      string `json:"address,omitempty"`
	Alias        string `json:"alias,omitempty"`
	Powered      bool   `json:"powered"`
	Discoverable bool   `json:"discoverable"`
	Pairable     bool   `json:"pairable"`
	Discovering  bool   `json:"discovering"`
	Devices      int    `json:"devices"`
	Line         string `json:"line"`
}

// StatusLine renders the flags of s compactly, e.g. "Bluetooth[P,D]".
func (s Status) StatusLine() string {
	var flags []string
	if s.Powered {
		flags = append(flags, "P")
	}
	if s.Discoverable {
		flags = append(flags, "D")
	}
	if s.Pairable {
		flags = append(flags, "Pa")
	}
	if s.Discovering {
		flags = append(flags, "S")
	}
	if len(flags) == 0 {
		return "Bluetooth[-]"
	}
	return "Bluetooth[" + strings.Join(flags, ",") + "]"
}

// plainProperties unwraps variants for serialization.
func plainProperties(props map[string]dbus.Variant) map[string]interface{} {
	out := make(map[string]interface{}, len(props))
	for k, v := range props {
		switch val := v.Value().(type) {
		case dbus.ObjectPath:
			out[k] = string(val)
		default:
			out[k] = val
		}
	}
	return out
}

// firstAdapter returns the first adapter the daemon lists.
func (b *BluetoothBackend) firstAdapter() (string, error) {
	adapters, err := b.transport.Adapters()
	if err != nil {
		return "", err
	}
	if len(adapters) == 0 {
		return "", ErrNoAdapter
	}
	return adapters[0], nil
}

func (b *BluetoothBackend) Status() (Status, error) {
	adapter, err := b.firstAdapter()
	if err != nil {
		return Status{}, err
	}
	props, err := b.transport.QueryProperties(Path(adapter), CapAdapter)
	if err != nil {
		return Status{}, err
	}
	st := Status{
		Adapter:      adapter,
		Address:      idbus.MapString(props, PROP_ADDRESS),
		Alias:        idbus.MapString(props, PROP_ALIAS),
		Powered:      idbus.MapBool(props, BT_STATE_POWERED.String()),
		Discoverable: idbus.MapBool(props, BT_STATE_DISCOVERABLE.String()),
		Pairable:     idbus.MapBool(props, BT_STATE_PAIRABLE.String()),
		Discovering:  idbus.MapBool(props, BT_STATE_DISCOVERING.String()),
	}
	if err := b.loop.Call(func() { st.Devices = b.registry.Len() }); err != nil {
		return Status{}, err
	}
	st.Line = st.StatusLine()
	return st, nil
}

func (b *BluetoothBackend) AdapterProperties() (map[string]interface{}, error) {
	adapter, err := b.firstAdapter()
	if err != nil {
		return nil, err
	}
	props, err := b.transport.QueryProperties(Path(adapter), CapAdapter)
	if err != nil {
		return nil, err
	}
	return plainProperties(props), nil
}

// ToggleAdapter flips Powered, Discoverable or Pairable. The read and the
// write are two calls, so a concurrent change in between is lost.
func (b *BluetoothBackend) ToggleAdapter(state AdapterState) error {
	switch state {
	case BT_STATE_POWERED, BT_STATE_DISCOVERABLE, BT_STATE_PAIRABLE:
	default:
		return &ValidationError{Field: "adapter property", Reason: fmt.Sprintf("%q cannot be toggled", state)}
	}
	adapter, err := b.firstAdapter()
	if err != nil {
		return err
	}
	logger.Debug("[bluetooth] toggling %s on %s", state, adapter)
	return b.transport.ToggleProperty(Path(adapter), CapAdapter, state.String())
}

func (b *BluetoothBackend) StartDiscovery() error {
	adapter, err := b.firstAdapter()
	if err != nil {
		return err
	}
	b.transport.CallMethod(Path(adapter), CapAdapter, METHOD_START_DISCOVERY, b.completion(METHOD_START_DISCOVERY, adapter))
	b.scanner.Start()
	return nil
}

func (b *BluetoothBackend) StopDiscovery() error {
	adapter, err := b.firstAdapter()
	if err != nil {
		return err
	}
	b.scanner.Stop()
	b.transport.CallMethod(Path(adapter), CapAdapter, METHOD_STOP_DISCOVERY, b.completion(METHOD_STOP_DISCOVERY, adapter))
	return nil
}

// completion logs the outcome of an async call and refreshes the cache.
func (b *BluetoothBackend) completion(method, target string) func(error) {
	return func(err error) {
		if err != nil {
			logger.Warn("[bluetooth] %s on %s failed: %v", method, target, err)
			return
		}
		logger.Debug("[bluetooth] %s on %s done", method, target)
		if err := b.registry.UpdateAll(b.onChange); err != nil {
			logger.Debug("[bluetooth] refresh after %s: %v", method, err)
		}
	}
}

// resolve returns the object path of a cached device.
func (b *BluetoothBackend) resolve(id string) (dbus.ObjectPath, error) {
	var path dbus.ObjectPath
	var err error
	if callErr := b.loop.Call(func() {
		d, ok := b.registry.Get(id)
		if !ok {
			err = &DeviceNotFoundError{ID: id}
			return
		}
		if path = b.registry.PathOf(d); path == "" {
			err = ErrNotReady
		}
	}); callErr != nil {
		return "", callErr
	}
	return path, err
}

func (b *BluetoothBackend) deviceCall(id, method string, args ...interface{}) error {
	path, err := b.resolve(id)
	if err != nil {
		return err
	}
	logger.Debug("[bluetooth] %s %s", method, id)
	b.transport.CallMethod(path, CapDevice, method, b.completion(method, id), args...)
	return nil
}

func (b *BluetoothBackend) Connect(id string) error {
	return b.deviceCall(id, METHOD_CONNECT)
}

func (b *BluetoothBackend) Disconnect(id string) error {
	return b.deviceCall(id, METHOD_DISCONNECT)
}

func (b *BluetoothBackend) Pair(id string) error {
	return b.deviceCall(id, METHOD_PAIR)
}

func (b *BluetoothBackend) CancelPairing(id string) error {
	return b.deviceCall(id, METHOD_CANCEL_PAIRING)
}

func parseProfile(profile string) (string, error) {
	u, err := uuid.Parse(profile)
	if err != nil {
		return "", &ValidationError{Field: "profile", Reason: err.Error()}
	}
	return u.String(), nil
}

func (b *BluetoothBackend) ConnectProfile(id, profile string) error {
	u, err := parseProfile(profile)
	if err != nil {
		return err
	}
	return b.deviceCall(id, METHOD_CONNECT_PROFILE, u)
}

func (b *BluetoothBackend) DisconnectProfile(id, profile string) error {
	u, err := parseProfile(profile)
	if err != nil {
		return err
	}
	return b.deviceCall(id, METHOD_DISCONNECT_PROFILE, u)
}

// RemoveDevice asks the owning adapter to forget the device.
func (b *BluetoothBackend) RemoveDevice(id string) error {
	path, err := b.resolve(id)
	if err != nil {
		return err
	}
	adapter := dbus.ObjectPath(strings.TrimSuffix(string(path), "/"+id))
	b.transport.CallMethod(adapter, CapAdapter, METHOD_REMOVE_DEVICE, func(err error) {
		if err != nil {
			logger.Warn("[bluetooth] %s of %s failed: %v", METHOD_REMOVE_DEVICE, id, err)
			return
		}
		b.registry.Remove(id)
	}, path)
	return nil
}

func (b *BluetoothBackend) toggleDevice(id, prop string) error {
	path, err := b.resolve(id)
	if err != nil {
		return err
	}
	return b.transport.ToggleProperty(path, CapDevice, prop)
}

func (b *BluetoothBackend) ToggleTrusted(id string) error {
	return b.toggleDevice(id, PROP_TRUSTED)
}

func (b *BluetoothBackend) ToggleBlocked(id string) error {
	return b.toggleDevice(id, PROP_BLOCKED)
}

func (b *BluetoothBackend) SetAlias(id, alias string) error {
	path, err := b.resolve(id)
	if err != nil {
		return err
	}
	// An empty alias makes the daemon fall back to the remote name.
	return b.transport.SetProperty(path, CapDevice, PROP_ALIAS, strings.TrimSpace(alias))
}

func (b *BluetoothBackend) ListDevices() ([]DeviceInfo, error) {
	devices := []DeviceInfo{}
	err := b.loop.Call(func() {
		b.registry.Map(func(d *Device) {
			devices = append(devices, d.Info())
		}, nil)
	})
	return devices, err
}

func (b *BluetoothBackend) GetDevice(id string) (DeviceInfo, error) {
	var info DeviceInfo
	var err error
	if callErr := b.loop.Call(func() {
		d, ok := b.registry.Get(id)
		if !ok {
			err = &DeviceNotFoundError{ID: id}
			return
		}
		info = d.Info()
	}); callErr != nil {
		return DeviceInfo{}, callErr
	}
	return info, err
}

// DeviceDetails renders the detail view of a device, plugin lines included.
func (b *BluetoothBackend) DeviceDetails(id string) (InfoLines, error) {
	lines := InfoLines{}
	var err error
	if callErr := b.loop.Call(func() {
		d, ok := b.registry.Get(id)
		if !ok {
			err = &DeviceNotFoundError{ID: id}
			return
		}
		b.registry.RenderInfo(d, &lines)
	}); callErr != nil {
		return nil, callErr
	}
	return lines, err
}

// BatteryLevel returns the last reported charge of a connected device.
func (b *BluetoothBackend) BatteryLevel(id string) (int64, bool) {
	var lvl int64
	var ok bool
	if err := b.loop.Call(func() { lvl, ok = b.battery.Level(id) }); err != nil {
		return 0, false
	}
	return lvl, ok
}

func (b *BluetoothBackend) PendingAgentRequests() ([]Request, error) {
	if b.apiPrompter == nil {
		return nil, ErrPromptUnavailable
	}
	return b.apiPrompter.Pending(), nil
}

func (b *BluetoothBackend) ReplyAgent(id, answer string) error {
	if b.apiPrompter == nil {
		return ErrPromptUnavailable
	}
	return b.apiPrompter.Reply(id, answer)
}

func (b *BluetoothBackend) QuitAgent(id string) error {
	if b.apiPrompter == nil {
		return ErrPromptUnavailable
	}
	return b.apiPrompter.Quit(id)
}
