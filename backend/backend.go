package backend

import (
	"context"

	"github.com/b0bbywan/odio-bluetooth/backend/bluetooth"
	"github.com/b0bbywan/odio-bluetooth/backend/systemd"
	"github.com/b0bbywan/odio-bluetooth/backend/zeroconf"
	"github.com/b0bbywan/odio-bluetooth/config"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

type Backend struct {
	Bluetooth *bluetooth.BluetoothBackend
	Systemd   *systemd.SystemdBackend
	Zeroconf  *zeroconf.ZeroConfBackend

	Events *Broadcaster
}

func New(
	ctx context.Context,
	btcfg *config.BluetoothConfig,
	syscfg *config.SystemdConfig,
	zerocfg *config.ZeroConfig,
) (*Backend, error) {
	var backend Backend

	bt, err := bluetooth.New(ctx, btcfg)
	if err != nil {
		return nil, err
	}
	backend.Bluetooth = bt

	// Without Bluetooth there is nothing to resync on daemon restarts.
	var onState systemd.StateFunc
	if bt != nil {
		onState = bt.DaemonStateChanged
	}
	s, err := systemd.New(ctx, syscfg, onState)
	if err != nil {
		logger.Warn("[backend] systemd watcher unavailable: %v", err)
		s = nil
	}
	backend.Systemd = s

	z, err := zeroconf.New(ctx, zerocfg)
	if err != nil {
		return nil, err
	}
	backend.Zeroconf = z

	backend.Events = newBroadcasterFromBackend(ctx, &backend)
	return &backend, nil
}

func (b *Backend) Start() error {
	if b.Bluetooth != nil {
		if err := b.Bluetooth.Start(); err != nil {
			return err
		}
	}

	if b.Systemd != nil {
		// The daemon is optional at boot; keep serving without the watcher.
		if err := b.Systemd.Start(); err != nil {
			logger.Warn("[backend] systemd watcher not started: %v", err)
		}
	}

	if b.Zeroconf != nil {
		if err := b.Zeroconf.Start(); err != nil {
			logger.Warn("[backend] zeroconf not started: %v", err)
		}
	}

	return nil
}

func (b *Backend) Close() {
	if b.Zeroconf != nil {
		b.Zeroconf.Close()
	}
	if b.Systemd != nil {
		b.Systemd.Close()
	}
	if b.Bluetooth != nil {
		b.Bluetooth.Close()
	}
}
