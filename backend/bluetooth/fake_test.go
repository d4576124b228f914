package bluetooth

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

// fakeTransport is an in-memory daemon. Handlers run synchronously on the
// caller's goroutine unless dispatch is set.
type fakeTransport struct {
	mu sync.Mutex

	props    map[dbus.ObjectPath]map[Capability]map[string]dbus.Variant
	ifaces   map[dbus.ObjectPath][]string
	adapters []string
	failing  map[dbus.ObjectPath]bool

	subs        map[int64]*Subscription
	lastID      int64
	subscribed  map[dbus.ObjectPath]int
	released    map[dbus.ObjectPath]int
	calls       []string
	callErr     error
	dispatch    func(func()) bool
	adaptersErr error
}

func newFakeTransport(adapters ...string) *fakeTransport {
	return &fakeTransport{
		props:      make(map[dbus.ObjectPath]map[Capability]map[string]dbus.Variant),
		ifaces:     make(map[dbus.ObjectPath][]string),
		adapters:   adapters,
		failing:    make(map[dbus.ObjectPath]bool),
		subs:       make(map[int64]*Subscription),
		subscribed: make(map[dbus.ObjectPath]int),
		released:   make(map[dbus.ObjectPath]int),
	}
}

// addDevice registers a device object under adapter.
func (f *fakeTransport) addDevice(adapter, id string, paired, connected bool, extra ...Capability) dbus.ObjectPath {
	path := Path(adapter, id)
	f.setProps(path, CapDevice, map[string]dbus.Variant{
		PROP_ADAPTER:   dbus.MakeVariant(Path(adapter)),
		PROP_ADDRESS:   dbus.MakeVariant(AddressFromID(id)),
		PROP_ALIAS:     dbus.MakeVariant("alias-" + id),
		PROP_PAIRED:    dbus.MakeVariant(paired),
		PROP_CONNECTED: dbus.MakeVariant(connected),
	})
	ifaces := []string{capabilityInterfaces[CapDevice], capabilityInterfaces[CapProperties]}
	for _, c := range extra {
		ifaces = append(ifaces, capabilityInterfaces[c])
	}
	f.mu.Lock()
	f.ifaces[path] = ifaces
	f.mu.Unlock()
	return path
}

func (f *fakeTransport) removeDevice(adapter, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.props, Path(adapter, id))
	delete(f.ifaces, Path(adapter, id))
}

func (f *fakeTransport) setProps(path dbus.ObjectPath, c Capability, props map[string]dbus.Variant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.props[path] == nil {
		f.props[path] = make(map[Capability]map[string]dbus.Variant)
	}
	f.props[path][c] = props
}

func (f *fakeTransport) setProp(path dbus.ObjectPath, c Capability, prop string, value interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.props[path][c][prop] = dbus.MakeVariant(value)
}

// fire delivers a PropertiesChanged batch to every live subscription at path.
func (f *fakeTransport) fire(path dbus.ObjectPath, c Capability, changed map[string]dbus.Variant, invalidated ...string) {
	iface := capabilityInterfaces[c]
	f.mu.Lock()
	var targets []*Subscription
	for _, sub := range f.subs {
		if sub.path == path && sub.iface == iface {
			targets = append(targets, sub)
		}
	}
	f.mu.Unlock()
	sort.Slice(targets, func(i, j int) bool { return targets[i].id < targets[j].id })
	for _, sub := range targets {
		sub.handler(changed, invalidated)
	}
}

func (f *fakeTransport) live(path dbus.ObjectPath) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, sub := range f.subs {
		if sub.path == path {
			n++
		}
	}
	return n
}

func (f *fakeTransport) subscribeCount(path dbus.ObjectPath) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed[path]
}

func (f *fakeTransport) releaseCount(path dbus.ObjectPath) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released[path]
}

func (f *fakeTransport) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTransport) QueryProperties(path dbus.ObjectPath, c Capability) (map[string]dbus.Variant, error) {
	if _, ok := InterfaceFor(c); !ok {
		return nil, ErrCapabilityUnsupported
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[path] {
		return nil, wrapUnavailable(errors.New("no reply"), "query-properties", path)
	}
	props, ok := f.props[path][c]
	if !ok {
		return nil, wrapUnavailable(errors.New("unknown object"), "query-properties", path)
	}
	return copyProperties(props), nil
}

func (f *fakeTransport) GetProperty(path dbus.ObjectPath, c Capability, prop string) (dbus.Variant, error) {
	props, err := f.QueryProperties(path, c)
	if err != nil {
		return dbus.Variant{}, err
	}
	v, ok := props[prop]
	if !ok {
		return dbus.Variant{}, errors.New("no such property")
	}
	return v, nil
}

func (f *fakeTransport) SetProperty(path dbus.ObjectPath, c Capability, prop string, value interface{}) error {
	if _, err := f.QueryProperties(path, c); err != nil {
		return err
	}
	f.setProp(path, c, prop, value)
	return nil
}

func (f *fakeTransport) ToggleProperty(path dbus.ObjectPath, c Capability, prop string) error {
	v, err := f.GetProperty(path, c, prop)
	if err != nil {
		return err
	}
	current, ok := v.Value().(bool)
	if !ok {
		return &ValidationError{Field: prop, Reason: "not a boolean property"}
	}
	return f.SetProperty(path, c, prop, !current)
}

func (f *fakeTransport) CallMethod(path dbus.ObjectPath, c Capability, method string, done func(error), args ...interface{}) {
	_, err := f.Call(path, c, method, args...)
	if done == nil {
		return
	}
	if f.dispatch != nil {
		f.dispatch(func() { done(err) })
		return
	}
	done(err)
}

func (f *fakeTransport) Call(path dbus.ObjectPath, c Capability, method string, args ...interface{}) ([]interface{}, error) {
	if _, ok := InterfaceFor(c); !ok {
		return nil, ErrCapabilityUnsupported
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, string(path)+" "+method)
	return nil, f.callErr
}

func (f *fakeTransport) RegisterPropertySignal(path dbus.ObjectPath, c Capability, handler PropertyHandler) (*Subscription, error) {
	iface, ok := InterfaceFor(c)
	if !ok {
		return nil, ErrCapabilityUnsupported
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastID++
	sub := &Subscription{id: f.lastID, path: path, iface: iface, handler: handler}
	f.subs[sub.id] = sub
	f.subscribed[path]++
	return sub, nil
}

func (f *fakeTransport) Unsubscribe(sub *Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[sub.id]; !ok {
		return ErrNotSubscribed
	}
	delete(f.subs, sub.id)
	f.released[sub.path]++
	return nil
}

func (f *fakeTransport) Interfaces(path dbus.ObjectPath) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ifaces, ok := f.ifaces[path]
	if !ok {
		return nil, wrapUnavailable(errors.New("unknown object"), "introspect", path)
	}
	return ifaces, nil
}

func (f *fakeTransport) Adapters() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.adaptersErr != nil {
		return nil, f.adaptersErr
	}
	return append([]string(nil), f.adapters...), nil
}

func (f *fakeTransport) DeviceIDs(adapter string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := string(Path(adapter)) + "/"
	var ids []string
	for path, caps := range f.props {
		if _, ok := caps[CapDevice]; !ok {
			continue
		}
		if rest, ok := strings.CutPrefix(string(path), prefix); ok && !strings.Contains(rest, "/") {
			ids = append(ids, rest)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// fakePrompter answers from fixed values. With block set, reads wait for
// ctx cancellation.
type fakePrompter struct {
	mu      sync.Mutex
	answer  string
	number  int64
	yes     bool
	err     error
	block   bool
	started chan Request
	asked   []Request
	notices []Request
}

func (p *fakePrompter) read(ctx context.Context, req Request) error {
	p.mu.Lock()
	p.asked = append(p.asked, req)
	block, started := p.block, p.started
	p.mu.Unlock()

	if started != nil {
		started <- req
	}
	if block {
		<-ctx.Done()
		return ErrInterrupted
	}
	return p.err
}

func (p *fakePrompter) ReadString(ctx context.Context, req Request) (string, error) {
	if err := p.read(ctx, req); err != nil {
		return "", err
	}
	return p.answer, nil
}

func (p *fakePrompter) ReadNumber(ctx context.Context, req Request) (int64, error) {
	if err := p.read(ctx, req); err != nil {
		return 0, err
	}
	return p.number, nil
}

func (p *fakePrompter) YesOrNo(ctx context.Context, req Request) (bool, error) {
	if err := p.read(ctx, req); err != nil {
		return false, err
	}
	return p.yes, nil
}

func (p *fakePrompter) Notify(req Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, req)
}

func (p *fakePrompter) lastAsked() Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.asked) == 0 {
		return Request{}
	}
	return p.asked[len(p.asked)-1]
}

// changeLog records the devices passed to a ChangeFunc.
type changeLog struct {
	ids []string
}

func (c *changeLog) record(d *Device) {
	c.ids = append(c.ids, d.ID)
}
