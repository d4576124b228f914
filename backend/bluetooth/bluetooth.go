package bluetooth

import (
	"context"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	idbus "github.com/b0bbywan/odio-bluetooth/backend/internal/dbus"
	"github.com/b0bbywan/odio-bluetooth/config"
	"github.com/b0bbywan/odio-bluetooth/events"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

// agentExporter publishes the agent on the bus. *dbus.Conn satisfies it.
type agentExporter interface {
	Export(v interface{}, path dbus.ObjectPath, iface string) error
	RequestName(name string, flags dbus.RequestNameFlags) (dbus.RequestNameReply, error)
	ReleaseName(name string) (dbus.ReleaseNameReply, error)
}

// BluetoothBackend owns the event loop and every structure it serializes:
// the device registry, the plugin table and the battery plugin.
type BluetoothBackend struct {
	conn   *dbus.Conn
	ctx    context.Context
	cancel context.CancelFunc
	config *config.BluetoothConfig

	loop      *Loop
	transport Transport
	registry  *Registry
	plugins   *Plugins
	battery   *batteryPlugin

	agent       *Agent
	apiPrompter *APIPrompter
	exporter    agentExporter
	agentMu     sync.Mutex
	agentReg    *agentRegistration

	scanner    *Scanner
	storage    *storageWatcher
	adapterSub *Subscription

	events    chan events.Event
	closeOnce sync.Once
}

// New connects to the system bus. It returns nil when Bluetooth is disabled.
func New(ctx context.Context, cfg *config.BluetoothConfig) (*BluetoothBackend, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, err
	}

	b := newBackend(ctx, cfg)
	t := newDBusTransport(conn, cfg.Timeout, b.loop.Post)
	b.conn = conn
	b.exporter = conn
	b.attach(t)
	t.start(b.ctx)
	return b, nil
}

func newBackend(ctx context.Context, cfg *config.BluetoothConfig) *BluetoothBackend {
	bctx, cancel := context.WithCancel(ctx)
	b := &BluetoothBackend{
		ctx:    bctx,
		cancel: cancel,
		config: cfg,
		loop:   NewLoop(64),
		events: make(chan events.Event, 64),
	}
	b.scanner = NewScanner(bctx, cfg.ScanInterval, b.sweep)
	return b
}

// attach wires the structures that depend on the transport.
func (b *BluetoothBackend) attach(t Transport) {
	b.transport = t
	b.plugins = NewPlugins()
	b.registry = NewRegistry(t, b.plugins)
	b.registry.OnAdded = func(d *Device) {
		b.notify(events.Event{Type: events.TypeDeviceAdded, Data: d.Info()})
	}
	b.registry.OnRemoved = func(d *Device) {
		b.notify(events.Event{Type: events.TypeDeviceRemoved, Data: d.Info()})
	}
	b.battery = newBatteryPlugin(b.registry, t, b.onChange)

	if agentCfg := b.config.Agent; agentCfg != nil && agentCfg.Enabled {
		var prompter Prompter
		switch agentCfg.Prompt {
		case config.PromptTerminal:
			prompter = NewTerminalPrompter(os.Stdin, os.Stdout)
		default:
			b.apiPrompter = NewAPIPrompter(b.notify)
			prompter = b.apiPrompter
		}
		b.agent = NewAgent(b, prompter)
	}
}

func (b *BluetoothBackend) Start() error {
	go b.loop.Run(b.ctx)

	if err := b.loop.Call(func() {
		if err := b.plugins.Register(CapBattery, b.battery.Plugin()); err != nil {
			logger.Error("[bluetooth] %v", err)
		}
	}); err != nil {
		return err
	}

	// The daemon may not be up yet; the systemd watcher sweeps again later.
	if err := b.refresh(); err != nil {
		logger.Warn("[bluetooth] initial scan failed: %v", err)
	}
	b.watchAdapter()

	if b.agent != nil && b.exporter != nil {
		if err := b.registerAgent(); err != nil {
			logger.Warn("[bluetooth] pairing agent not registered: %v", err)
		}
	}

	if b.config.StorageDir != "" {
		b.storage = newStorageWatcher(b.config.StorageDir, b.sweep)
		if err := b.storage.Start(b.ctx); err != nil {
			logger.Warn("[bluetooth] not watching %s: %v", b.config.StorageDir, err)
			b.storage = nil
		}
	}

	logger.Info("[bluetooth] backend started")
	return nil
}

func (b *BluetoothBackend) Close() {
	b.closeOnce.Do(func() {
		b.scanner.Stop()
		b.agentMu.Lock()
		if b.agentReg != nil {
			b.agentReg.release()
			b.agentReg = nil
		}
		b.agentMu.Unlock()
		err := b.loop.Call(func() {
			if b.adapterSub != nil {
				if err := b.transport.Unsubscribe(b.adapterSub); err != nil {
					logger.Debug("[bluetooth] releasing adapter subscription: %v", err)
				}
				b.adapterSub = nil
			}
			b.registry.Clear()
			b.plugins.UnregisterAll()
		})
		if err != nil {
			logger.Debug("[bluetooth] close: %v", err)
		}
		b.cancel()
		if b.conn != nil {
			if err := b.conn.Close(); err != nil {
				logger.Debug("[bluetooth] closing bus connection: %v", err)
			}
		}
	})
}

// AgentEnabled reports whether pairing requests are answered by this process.
func (b *BluetoothBackend) AgentEnabled() bool {
	return b.agent != nil
}

// Events streams device, adapter and agent events.
func (b *BluetoothBackend) Events() <-chan events.Event {
	return b.events
}

func (b *BluetoothBackend) notify(e events.Event) {
	select {
	case b.events <- e:
	default:
		logger.Warn("[bluetooth] event channel full, dropping %s", e.Type)
	}
}

func (b *BluetoothBackend) onChange(d *Device) {
	b.notify(events.Event{Type: events.TypeDeviceUpdated, Data: d.Info()})
}

// refresh runs a full sweep and waits for it.
func (b *BluetoothBackend) refresh() error {
	var err error
	if callErr := b.loop.Call(func() {
		err = b.registry.UpdateAll(b.onChange)
	}); callErr != nil {
		return callErr
	}
	return err
}

// sweep queues a full sweep without waiting.
func (b *BluetoothBackend) sweep() {
	b.loop.Post(func() {
		if err := b.registry.UpdateAll(b.onChange); err != nil {
			logger.Debug("[bluetooth] sweep failed: %v", err)
		}
	})
}

// DaemonStateChanged is called when bluetoothd starts or stops. A restarted
// daemon has forgotten the agent registration, and a daemon that was down
// at startup never saw it.
func (b *BluetoothBackend) DaemonStateChanged(active bool) {
	if !active {
		logger.Info("[bluetooth] bluetooth daemon stopped")
		b.scanner.Stop()
		return
	}
	logger.Info("[bluetooth] bluetooth daemon started, rescanning")
	if b.agent != nil && b.exporter != nil {
		if err := b.ensureAgent(); err != nil {
			logger.Warn("[bluetooth] pairing agent not registered: %v", err)
		}
	}
	b.watchAdapter()
	b.sweep()
}

// watchAdapter subscribes to property changes of the first adapter.
func (b *BluetoothBackend) watchAdapter() {
	adapter, err := b.firstAdapter()
	if err != nil {
		logger.Debug("[bluetooth] no adapter to watch: %v", err)
		return
	}
	path := Path(adapter)
	err = b.loop.Call(func() {
		if b.adapterSub != nil {
			if b.adapterSub.Path() == path {
				return
			}
			if err := b.transport.Unsubscribe(b.adapterSub); err != nil {
				logger.Debug("[bluetooth] releasing adapter subscription: %v", err)
			}
			b.adapterSub = nil
		}
		sub, err := b.transport.RegisterPropertySignal(path, CapAdapter, b.adapterChanged)
		if err != nil {
			logger.Warn("[bluetooth] failed to watch adapter %s: %v", adapter, err)
			return
		}
		b.adapterSub = sub
	})
	if err != nil {
		logger.Debug("[bluetooth] watch adapter: %v", err)
	}
}

func (b *BluetoothBackend) adapterChanged(changed map[string]dbus.Variant, invalidated []string) {
	if v, ok := changed[BT_STATE_DISCOVERING.String()]; ok {
		if on, ok := v.Value().(bool); ok {
			if on {
				b.scanner.Start()
			} else {
				b.scanner.Stop()
			}
		}
	}
	b.notify(events.Event{Type: events.TypeAdapterUpdated, Data: plainProperties(changed)})
}

// AliasOf resolves a device name from outside the loop.
func (b *BluetoothBackend) AliasOf(path dbus.ObjectPath) string {
	alias := AddressFromID(leaf(path))
	if err := b.loop.Call(func() {
		alias = b.registry.AliasOf(path)
	}); err != nil {
		logger.Debug("[bluetooth] alias lookup for %s: %v", path, err)
	}
	return alias
}

const agentIntrospect = `
<node>
	<interface name="org.bluez.Agent1">
		<method name="Release"></method>
		<method name="RequestPinCode">
			<arg direction="in" type="o"/>
			<arg direction="out" type="s"/>
		</method>
		<method name="DisplayPinCode">
			<arg direction="in" type="o"/>
			<arg direction="in" type="s"/>
		</method>
		<method name="RequestPasskey">
			<arg direction="in" type="o"/>
			<arg direction="out" type="u"/>
		</method>
		<method name="DisplayPasskey">
			<arg direction="in" type="o"/>
			<arg direction="in" type="u"/>
			<arg direction="in" type="q"/>
		</method>
		<method name="RequestConfirmation">
			<arg direction="in" type="o"/>
			<arg direction="in" type="u"/>
		</method>
		<method name="RequestAuthorization">
			<arg direction="in" type="o"/>
		</method>
		<method name="AuthorizeService">
			<arg direction="in" type="o"/>
			<arg direction="in" type="s"/>
		</method>
		<method name="Cancel"></method>
	</interface>` + introspect.IntrospectDataString + `</node>`

// ensureAgent registers the agent from scratch when no registration is
// held, and announces the exported one again otherwise.
func (b *BluetoothBackend) ensureAgent() error {
	b.agentMu.Lock()
	held := b.agentReg != nil
	b.agentMu.Unlock()
	if !held {
		return b.registerAgent()
	}
	return b.announceAgent()
}

// registerAgent exports the agent and registers it with bluetoothd. Steps
// already done are undone when a later one fails.
func (b *BluetoothBackend) registerAgent() error {
	b.agentMu.Lock()
	defer b.agentMu.Unlock()
	if b.agentReg != nil {
		return nil
	}

	agentIface, _ := InterfaceFor(CapAgent)
	reg := &agentRegistration{}

	if err := b.exporter.Export(b.agent, AGENT_PATH, agentIface); err != nil {
		return err
	}
	reg.add("unexport agent", func() error {
		return b.exporter.Export(nil, AGENT_PATH, agentIface)
	})

	if err := b.exporter.Export(introspect.Introspectable(agentIntrospect), AGENT_PATH, idbus.INTROSPECTABLE); err != nil {
		reg.release()
		return err
	}
	reg.add("unexport introspection", func() error {
		return b.exporter.Export(nil, AGENT_PATH, idbus.INTROSPECTABLE)
	})

	if service := b.config.Agent.Service; service != "" {
		reply, err := b.exporter.RequestName(service, dbus.NameFlagDoNotQueue)
		switch {
		case err != nil:
			logger.Warn("[bluetooth] cannot own %s: %v", service, err)
		case reply != dbus.RequestNameReplyPrimaryOwner:
			logger.Warn("[bluetooth] %s is already owned", service)
		default:
			reg.add("release name", func() error {
				_, err := b.exporter.ReleaseName(service)
				return err
			})
		}
	}

	if err := b.announceAgent(); err != nil {
		reg.release()
		return err
	}
	reg.add("unregister agent", func() error {
		_, err := b.transport.Call(Path(), CapAgentManager, METHOD_UNREGISTER_AGENT, dbus.ObjectPath(AGENT_PATH))
		return err
	})

	b.agentReg = reg
	logger.Info("[bluetooth] pairing agent registered at %s", AGENT_PATH)
	return nil
}

// announceAgent registers the exported agent with the agent manager and
// asks to be the default one.
func (b *BluetoothBackend) announceAgent() error {
	_, err := b.transport.Call(Path(), CapAgentManager, METHOD_REGISTER_AGENT, dbus.ObjectPath(AGENT_PATH), AGENT_CAPABILITY)
	if err != nil && errorName(err) != ERROR_ALREADY_EXISTS {
		return err
	}
	if _, err := b.transport.Call(Path(), CapAgentManager, METHOD_REQUEST_DEFAULT_AGENT, dbus.ObjectPath(AGENT_PATH)); err != nil {
		logger.Warn("[bluetooth] agent is not the default one: %v", err)
	}
	return nil
}
