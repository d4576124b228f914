package dbus

import (
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestFilterSignal(t *testing.T) {
	changed := map[string]dbus.Variant{"Connected": dbus.MakeVariant(true)}

	tests := []struct {
		name      string
		sig       *dbus.Signal
		wantErr   bool
		wantIface string
	}{
		{name: "nil signal", sig: nil, wantErr: true},
		{name: "short body", sig: &dbus.Signal{Body: []interface{}{"org.bluez.Device1"}}, wantErr: true},
		{name: "bad iface", sig: &dbus.Signal{Body: []interface{}{42, changed}}, wantErr: true},
		{name: "bad map", sig: &dbus.Signal{Body: []interface{}{"org.bluez.Device1", "nope"}}, wantErr: true},
		{
			name:      "valid",
			sig:       &dbus.Signal{Body: []interface{}{"org.bluez.Device1", changed, []string{}}},
			wantIface: "org.bluez.Device1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, iface, err := FilterSignal(tt.sig)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FilterSignal() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if _, ok := err.(*SignalError); !ok {
					t.Errorf("expected *SignalError, got %T", err)
				}
				return
			}
			if iface != tt.wantIface {
				t.Errorf("iface = %q, want %q", iface, tt.wantIface)
			}
			if !MapBool(got, "Connected") {
				t.Error("Connected should be true")
			}
		})
	}
}

func TestInvalidated(t *testing.T) {
	sig := &dbus.Signal{Body: []interface{}{"org.bluez.Device1", map[string]dbus.Variant{}, []string{"RSSI"}}}
	names := Invalidated(sig)
	if len(names) != 1 || names[0] != "RSSI" {
		t.Errorf("Invalidated() = %v, want [RSSI]", names)
	}
	if Invalidated(&dbus.Signal{Body: []interface{}{"x", map[string]dbus.Variant{}}}) != nil {
		t.Error("two-element body has no invalidated list")
	}
}

func TestPropertiesChangedRule(t *testing.T) {
	rule := PropertiesChangedRule("org.bluez", "/org/bluez/hci0/dev_AA", "org.bluez.Device1")
	want := "type='signal',interface='org.freedesktop.DBus.Properties',member='PropertiesChanged'," +
		"sender='org.bluez',path='/org/bluez/hci0/dev_AA',arg0='org.bluez.Device1'"
	if rule != want {
		t.Errorf("rule = %q\nwant %q", rule, want)
	}

	rule = PropertiesChangedRule("", "/org/bluez/hci0", "")
	want = "type='signal',interface='org.freedesktop.DBus.Properties',member='PropertiesChanged',path='/org/bluez/hci0'"
	if rule != want {
		t.Errorf("rule = %q\nwant %q", rule, want)
	}
}

func TestExtractInt64(t *testing.T) {
	tests := []struct {
		name string
		v    dbus.Variant
		want int64
		ok   bool
	}{
		{"byte", dbus.MakeVariant(byte(80)), 80, true},
		{"int16", dbus.MakeVariant(int16(-60)), -60, true},
		{"uint16", dbus.MakeVariant(uint16(76)), 76, true},
		{"uint32", dbus.MakeVariant(uint32(0x240404)), 0x240404, true},
		{"string", dbus.MakeVariant("80"), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractInt64(tt.v)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ExtractInt64() = %d, %v; want %d, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestMapHelpers(t *testing.T) {
	props := map[string]dbus.Variant{
		"Alias":   dbus.MakeVariant("Headphones"),
		"Paired":  dbus.MakeVariant(true),
		"UUIDs":   dbus.MakeVariant([]string{"0000110b-0000-1000-8000-00805f9b34fb"}),
		"Adapter": dbus.MakeVariant(dbus.ObjectPath("/org/bluez/hci0")),
		"RSSI":    dbus.MakeVariant(int16(-50)),
	}

	if got := MapString(props, "Alias"); got != "Headphones" {
		t.Errorf("MapString(Alias) = %q", got)
	}
	if got := MapString(props, "Missing"); got != "" {
		t.Errorf("MapString(Missing) = %q", got)
	}
	if !MapBool(props, "Paired") {
		t.Error("MapBool(Paired) should be true")
	}
	if _, ok := MapBoolOK(props, "Alias"); ok {
		t.Error("MapBoolOK on string should not be ok")
	}
	if got := MapStrings(props, "UUIDs"); len(got) != 1 {
		t.Errorf("MapStrings(UUIDs) = %v", got)
	}
	if got := MapObjectPath(props, "Adapter"); got != "/org/bluez/hci0" {
		t.Errorf("MapObjectPath(Adapter) = %q", got)
	}
	if got, ok := MapInt64OK(props, "RSSI"); !ok || got != -50 {
		t.Errorf("MapInt64OK(RSSI) = %d, %v", got, ok)
	}

	keys := Keys(props)
	if len(keys) != 5 || keys[0] != "Adapter" || keys[4] != "UUIDs" {
		t.Errorf("Keys() = %v, want sorted", keys)
	}
}

func TestTimeoutErrorMessage(t *testing.T) {
	if (&TimeoutError{}).Error() != "dbus: call timed out" {
		t.Error("unexpected generic timeout message")
	}
	if (&TimeoutError{Method: "org.bluez.Device1.Connect"}).Error() != "dbus: call org.bluez.Device1.Connect timed out" {
		t.Error("unexpected method timeout message")
	}
}
