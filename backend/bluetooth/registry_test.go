package bluetooth

import (
	"slices"
	"testing"

	"github.com/godbus/dbus/v5"
)

func newTestRegistry(adapters ...string) (*Registry, *fakeTransport) {
	ft := newFakeTransport(adapters...)
	return NewRegistry(ft, NewPlugins()), ft
}

func TestRegistryAddSubscribesPairedOnly(t *testing.T) {
	r, ft := newTestRegistry("hci0")
	paired := ft.addDevice("hci0", "dev_AA", true, false)
	unpaired := ft.addDevice("hci0", "dev_BB", false, false)

	if err := r.Add("dev_AA", "hci0", nil); err != nil {
		t.Fatalf("Add(dev_AA) error = %v", err)
	}
	if err := r.Add("dev_BB", "hci0", nil); err != nil {
		t.Fatalf("Add(dev_BB) error = %v", err)
	}

	if got := ft.live(paired); got != 1 {
		t.Errorf("paired device has %d subscriptions, want 1", got)
	}
	if got := ft.live(unpaired); got != 0 {
		t.Errorf("unpaired device has %d subscriptions, want 0", got)
	}
	d, _ := r.Get("dev_BB")
	if d.Subscribed() {
		t.Error("unpaired record should not hold a subscription")
	}
}

func TestRegistryAddTwiceKeepsOneSubscription(t *testing.T) {
	r, ft := newTestRegistry("hci0")
	path := ft.addDevice("hci0", "dev_AA", true, false)

	for i := 0; i < 3; i++ {
		if err := r.Add("dev_AA", "hci0", nil); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	if got := ft.subscribeCount(path); got != 1 {
		t.Errorf("subscribed %d times, want 1", got)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistryAddUnavailable(t *testing.T) {
	r, _ := newTestRegistry("hci0")

	err := r.Add("dev_GONE", "hci0", nil)
	if err == nil {
		t.Fatal("Add() of a missing object should fail")
	}
	if !IsRemoteUnavailable(err) {
		t.Errorf("expected a RemoteUnavailableError, got %v", err)
	}
	if _, ok := r.Get("dev_GONE"); ok {
		t.Error("failed Add() must not cache a record")
	}
}

func TestRegistryRemoveReleasesOnce(t *testing.T) {
	r, ft := newTestRegistry("hci0")
	path := ft.addDevice("hci0", "dev_AA", true, false)
	if err := r.Add("dev_AA", "hci0", nil); err != nil {
		t.Fatal(err)
	}

	var removed []string
	r.OnRemoved = func(d *Device) { removed = append(removed, d.ID) }

	r.Remove("dev_AA")
	r.Remove("dev_AA")

	if got := ft.releaseCount(path); got != 1 {
		t.Errorf("released %d times, want 1", got)
	}
	if len(removed) != 1 {
		t.Errorf("OnRemoved called %d times, want 1", len(removed))
	}
	if _, ok := r.Get("dev_AA"); ok {
		t.Error("record should be gone")
	}
}

func TestRegistryReconcileSymmetricDifference(t *testing.T) {
	r, ft := newTestRegistry("hci0")
	for _, id := range []string{"dev_A", "dev_B", "dev_C"} {
		ft.addDevice("hci0", id, true, false)
		if err := r.Add(id, "hci0", nil); err != nil {
			t.Fatal(err)
		}
	}

	ft.removeDevice("hci0", "dev_A")
	ft.addDevice("hci0", "dev_D", true, false)

	var added, removed []string
	r.OnAdded = func(d *Device) { added = append(added, d.ID) }
	r.OnRemoved = func(d *Device) { removed = append(removed, d.ID) }

	if err := r.Reconcile("hci0", nil); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if !slices.Equal(removed, []string{"dev_A"}) {
		t.Errorf("removed = %v, want [dev_A]", removed)
	}
	if !slices.Equal(added, []string{"dev_D"}) {
		t.Errorf("added = %v, want [dev_D]", added)
	}
	for _, id := range []string{"dev_B", "dev_C"} {
		if got := ft.subscribeCount(Path("hci0", id)); got != 1 {
			t.Errorf("%s subscribed %d times, want 1", id, got)
		}
	}
	if got := ft.releaseCount(Path("hci0", "dev_A")); got != 1 {
		t.Errorf("dev_A released %d times, want 1", got)
	}
}

func TestRegistryReconcileSkipsFailingDevice(t *testing.T) {
	r, ft := newTestRegistry("hci0")
	bad := ft.addDevice("hci0", "dev_BAD", true, false)
	ft.addDevice("hci0", "dev_GOOD", true, false)
	ft.failing[bad] = true

	if err := r.Reconcile("hci0", nil); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if _, ok := r.Get("dev_GOOD"); !ok {
		t.Error("a failing device must not stop the sweep")
	}
	if _, ok := r.Get("dev_BAD"); ok {
		t.Error("failing device should be skipped")
	}
}

func TestRegistryReconcileKeepsOtherAdapters(t *testing.T) {
	r, ft := newTestRegistry("hci0", "hci1")
	ft.addDevice("hci0", "dev_A", false, false)
	ft.addDevice("hci1", "dev_B", false, false)
	if err := r.UpdateAll(nil); err != nil {
		t.Fatal(err)
	}

	if err := r.Reconcile("hci0", nil); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Get("dev_B"); !ok {
		t.Error("reconciling hci0 must not drop devices of hci1")
	}
}

func TestRegistryUpdateAllDropsVanishedAdapter(t *testing.T) {
	r, ft := newTestRegistry("hci0", "hci1")
	ft.addDevice("hci0", "dev_A", false, false)
	ft.addDevice("hci1", "dev_B", false, false)
	if err := r.UpdateAll(nil); err != nil {
		t.Fatal(err)
	}
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}

	ft.adapters = []string{"hci0"}
	if err := r.UpdateAll(nil); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Get("dev_B"); ok {
		t.Error("device of a removed adapter should be dropped")
	}
	if _, ok := r.Get("dev_A"); !ok {
		t.Error("dev_A should remain")
	}
}

func TestRegistryUpdateInstallsSubscriptionWhenPaired(t *testing.T) {
	r, ft := newTestRegistry("hci0")
	path := ft.addDevice("hci0", "dev_AA", false, false)
	if err := r.Add("dev_AA", "hci0", nil); err != nil {
		t.Fatal(err)
	}

	ft.setProp(path, CapDevice, PROP_PAIRED, true)
	changes := &changeLog{}
	if err := r.Reconcile("hci0", changes.record); err != nil {
		t.Fatal(err)
	}

	d, _ := r.Get("dev_AA")
	if !d.Subscribed() || ft.live(path) != 1 {
		t.Error("newly paired device should gain a subscription on update")
	}
	if !slices.Equal(changes.ids, []string{"dev_AA"}) {
		t.Errorf("changes = %v, want [dev_AA]", changes.ids)
	}

	// A second identical snapshot is not a change.
	if err := r.Reconcile("hci0", changes.record); err != nil {
		t.Fatal(err)
	}
	if len(changes.ids) != 1 {
		t.Errorf("unchanged snapshot reported as change: %v", changes.ids)
	}
}

func TestRegistryHandleChange(t *testing.T) {
	r, ft := newTestRegistry("hci0")
	path := ft.addDevice("hci0", "dev_AA", true, false)
	changes := &changeLog{}
	if err := r.Add("dev_AA", "hci0", changes.record); err != nil {
		t.Fatal(err)
	}

	var hooked []string
	if _, err := r.AddPropertyHook("dev_AA", PROP_ALIAS, func(d *Device, v dbus.Variant) {
		hooked = append(hooked, v.Value().(string))
	}); err != nil {
		t.Fatal(err)
	}

	ft.fire(path, CapDevice, map[string]dbus.Variant{
		PROP_ALIAS: dbus.MakeVariant("Speaker"),
		PROP_RSSI:  dbus.MakeVariant(int16(-40)),
	})

	d, _ := r.Get("dev_AA")
	if d.Alias() != "Speaker" {
		t.Errorf("Alias() = %q, want Speaker", d.Alias())
	}
	if !slices.Equal(hooked, []string{"Speaker"}) {
		t.Errorf("hook calls = %v", hooked)
	}
	if len(changes.ids) != 1 {
		t.Errorf("onChange called %d times, want 1", len(changes.ids))
	}

	ft.fire(path, CapDevice, map[string]dbus.Variant{}, PROP_RSSI)
	if _, ok := d.Properties[PROP_RSSI]; ok {
		t.Error("invalidated property should be dropped")
	}
}

func TestRegistryHandleChangeIgnoresOtherInterfaces(t *testing.T) {
	r, ft := newTestRegistry("hci0")
	path := ft.addDevice("hci0", "dev_AA", true, false)
	if err := r.Add("dev_AA", "hci0", nil); err != nil {
		t.Fatal(err)
	}

	ft.fire(path, CapBattery, map[string]dbus.Variant{PROP_ALIAS: dbus.MakeVariant("wrong")})

	d, _ := r.Get("dev_AA")
	if d.Alias() != "alias-dev_AA" {
		t.Errorf("battery signal leaked into device properties: %q", d.Alias())
	}
}

func TestRegistryUnpairReleasesSubscription(t *testing.T) {
	r, ft := newTestRegistry("hci0")
	path := ft.addDevice("hci0", "dev_AA", true, false)
	if err := r.Add("dev_AA", "hci0", nil); err != nil {
		t.Fatal(err)
	}

	ft.fire(path, CapDevice, map[string]dbus.Variant{PROP_PAIRED: dbus.MakeVariant(false)})

	d, _ := r.Get("dev_AA")
	if d.Subscribed() {
		t.Error("unpaired device should release its subscription")
	}
	r.Remove("dev_AA")
	if got := ft.releaseCount(path); got != 1 {
		t.Errorf("released %d times, want 1", got)
	}
}

func TestRegistryStaleHandlerIsHarmless(t *testing.T) {
	r, ft := newTestRegistry("hci0")
	ft.addDevice("hci0", "dev_AA", true, false)
	changes := &changeLog{}
	if err := r.Add("dev_AA", "hci0", changes.record); err != nil {
		t.Fatal(err)
	}
	d, _ := r.Get("dev_AA")
	handler := d.subscription.handler

	r.Remove("dev_AA")
	handler(map[string]dbus.Variant{PROP_ALIAS: dbus.MakeVariant("late")}, nil)

	if len(changes.ids) != 0 {
		t.Error("a handler firing after removal must not report changes")
	}
}

func TestRegistryConnectedNotifiesPlugins(t *testing.T) {
	r, ft := newTestRegistry("hci0")
	path := ft.addDevice("hci0", "dev_AA", true, false, CapBattery)
	if err := r.Add("dev_AA", "hci0", nil); err != nil {
		t.Fatal(err)
	}

	var order []string
	if err := r.plugins.Register(CapBattery, Plugin{
		New:    func(d *Device) { order = append(order, "new") },
		Remove: func(d *Device) { order = append(order, "remove") },
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.AddPropertyHook("dev_AA", PROP_CONNECTED, func(d *Device, v dbus.Variant) {
		order = append(order, "hook")
	}); err != nil {
		t.Fatal(err)
	}

	ft.fire(path, CapDevice, map[string]dbus.Variant{PROP_CONNECTED: dbus.MakeVariant(true)})
	ft.fire(path, CapDevice, map[string]dbus.Variant{PROP_SERVICES_RESOLVED: dbus.MakeVariant(true)})
	ft.fire(path, CapDevice, map[string]dbus.Variant{PROP_CONNECTED: dbus.MakeVariant(false)})

	want := []string{"new", "hook", "remove", "hook"}
	if !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestRegistryPathOf(t *testing.T) {
	r, _ := newTestRegistry()
	d := newDevice("dev_AA", map[string]dbus.Variant{})
	if got := r.PathOf(d); got != "" {
		t.Errorf("PathOf() without adapter = %q, want empty", got)
	}
	d.Properties[PROP_ADAPTER] = dbus.MakeVariant(dbus.ObjectPath("/org/bluez/hci0"))
	if got := r.PathOf(d); got != "/org/bluez/hci0/dev_AA" {
		t.Errorf("PathOf() = %q", got)
	}
}

func TestRegistryImplements(t *testing.T) {
	r, ft := newTestRegistry("hci0")
	ft.addDevice("hci0", "dev_AA", false, true, CapBattery)
	if err := r.Add("dev_AA", "hci0", nil); err != nil {
		t.Fatal(err)
	}
	d, _ := r.Get("dev_AA")

	if iface, ok := r.Implements(d, CapBattery); !ok || iface != "org.bluez.Battery1" {
		t.Errorf("Implements(battery) = %q, %v", iface, ok)
	}
	if _, ok := r.Implements(d, CapMediaPlayer); ok {
		t.Error("device does not expose MediaPlayer1")
	}
	if _, ok := r.Implements(d, Capability("bogus")); ok {
		t.Error("unknown capability must be unsupported")
	}
}

func TestRegistryPropertyHooks(t *testing.T) {
	r, ft := newTestRegistry("hci0")
	path := ft.addDevice("hci0", "dev_AA", true, false)
	if err := r.Add("dev_AA", "hci0", nil); err != nil {
		t.Fatal(err)
	}

	calls := 0
	id, err := r.AddPropertyHook("dev_AA", PROP_TRUSTED, func(*Device, dbus.Variant) { calls++ })
	if err != nil {
		t.Fatal(err)
	}
	ft.fire(path, CapDevice, map[string]dbus.Variant{PROP_TRUSTED: dbus.MakeVariant(true)})

	if !r.RemovePropertyHook("dev_AA", PROP_TRUSTED, id) {
		t.Error("RemovePropertyHook() should report an installed hook")
	}
	if r.RemovePropertyHook("dev_AA", PROP_TRUSTED, id) {
		t.Error("second RemovePropertyHook() should report false")
	}
	ft.fire(path, CapDevice, map[string]dbus.Variant{PROP_TRUSTED: dbus.MakeVariant(false)})

	if calls != 1 {
		t.Errorf("hook called %d times, want 1", calls)
	}

	if _, err := r.AddPropertyHook("dev_NOPE", PROP_TRUSTED, nil); err == nil {
		t.Error("hook on unknown device should fail")
	}
}

func TestRegistryMapFilter(t *testing.T) {
	r, ft := newTestRegistry("hci0")
	ft.addDevice("hci0", "dev_A", true, true)
	ft.addDevice("hci0", "dev_B", false, false)
	ft.addDevice("hci0", "dev_C", true, false)
	if err := r.UpdateAll(nil); err != nil {
		t.Fatal(err)
	}

	var all, paired []string
	r.Map(func(d *Device) { all = append(all, d.ID) }, nil)
	r.Map(func(d *Device) { paired = append(paired, d.ID) }, (*Device).Paired)

	if !slices.Equal(all, []string{"dev_A", "dev_B", "dev_C"}) {
		t.Errorf("all = %v", all)
	}
	if !slices.Equal(paired, []string{"dev_A", "dev_C"}) {
		t.Errorf("paired = %v", paired)
	}
}

func TestRegistryAliasFallback(t *testing.T) {
	r, ft := newTestRegistry("hci0")
	ft.addDevice("hci0", "dev_11_22_33_44_55_66", false, false)
	if err := r.Add("dev_11_22_33_44_55_66", "hci0", nil); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path dbus.ObjectPath
		want string
	}{
		{"/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF", "AA:BB:CC:DD:EE:FF"},
		{"/org/bluez/hci0/dev_11_22_33_44_55_66", "alias-dev_11_22_33_44_55_66"},
		{"/", "/"},
	}
	for _, tt := range tests {
		if got := r.AliasOf(tt.path); got != tt.want {
			t.Errorf("AliasOf(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
