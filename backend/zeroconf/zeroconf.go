package zeroconf

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/grandcat/zeroconf"

	"github.com/b0bbywan/odio-bluetooth/config"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

var ErrAlreadyStarted = errors.New("zeroconf: service already published")

// ZeroConfBackend advertises the API over mDNS.
type ZeroConfBackend struct {
	Config *config.ZeroConfig

	server *zeroconf.Server
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

// New returns nil when zeroconf is disabled or no interface matches the
// API bind address: advertising on every interface would expose a
// loopback-only API.
func New(ctx context.Context, cfg *config.ZeroConfig) (*ZeroConfBackend, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	if len(cfg.Listen) == 0 {
		logger.Info("[zeroconf] no interface to advertise on, disabling")
		return nil, nil
	}

	subCtx, cancel := context.WithCancel(ctx)
	return &ZeroConfBackend{
		Config: cfg,
		ctx:    subCtx,
		cancel: cancel,
	}, nil
}

// txtRecords lists the TXT records of the service, the capability marker
// included once.
func txtRecords(cfg *config.ZeroConfig) []string {
	records := slices.Clone(cfg.TxtRecords)
	if !slices.Contains(records, "bluetooth=1") {
		records = append(records, "bluetooth=1")
	}
	return records
}

// Start publishes the service until the context ends or Close is called.
func (z *ZeroConfBackend) Start() error {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.server != nil {
		return ErrAlreadyStarted
	}

	server, err := zeroconf.Register(
		z.Config.InstanceName,
		z.Config.ServiceType,
		z.Config.Domain,
		z.Config.Port,
		txtRecords(z.Config),
		z.Config.Listen,
	)
	if err != nil {
		return err
	}

	z.server = server
	logger.Info("[zeroconf] service %q published (type: %s, port: %d)",
		z.Config.InstanceName, z.Config.ServiceType, z.Config.Port)

	go func() {
		<-z.ctx.Done()
		z.Close()
	}()

	return nil
}

// Close withdraws the service. It is safe to call more than once.
func (z *ZeroConfBackend) Close() {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.server != nil {
		z.server.Shutdown()
		z.server = nil
		logger.Debug("[zeroconf] service %q withdrawn", z.Config.InstanceName)
	}

	if z.cancel != nil {
		z.cancel()
		z.cancel = nil
	}
}
