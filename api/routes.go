package api

import (
	"net/http"

	"github.com/b0bbywan/odio-bluetooth/backend"
	"github.com/b0bbywan/odio-bluetooth/backend/systemd"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

func (s *Server) registerServerRoutes(b *backend.Backend) {
	s.mux.HandleFunc(
		"GET /server",
		JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
			return b.GetServerDeviceInfo()
		}),
	)

	if s.broadcaster != nil {
		s.mux.HandleFunc("GET /events", sseHandler(s.broadcaster))
		logger.Info("[api] SSE route registered at /events")
	}
}

func (s *Server) registerBluetoothRoutes(bt BluetoothService) {
	// adapter
	s.mux.HandleFunc(
		"GET /bluetooth",
		JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
			return bt.Status()
		}),
	)
	s.mux.HandleFunc(
		"GET /bluetooth/adapter",
		JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
			return bt.AdapterProperties()
		}),
	)
	s.mux.HandleFunc(
		"POST /bluetooth/adapter/{property}/toggle",
		toggleAdapterHandler(bt),
	)
	s.mux.HandleFunc(
		"POST /bluetooth/discovery/start",
		withAction(bt.StartDiscovery),
	)
	s.mux.HandleFunc(
		"POST /bluetooth/discovery/stop",
		withAction(bt.StopDiscovery),
	)

	// devices
	s.mux.HandleFunc(
		"GET /bluetooth/devices",
		JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
			return bt.ListDevices()
		}),
	)
	s.mux.HandleFunc(
		"GET /bluetooth/devices/{device}",
		JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
			return bt.GetDevice(deviceID(r))
		}),
	)
	s.mux.HandleFunc(
		"GET /bluetooth/devices/{device}/info",
		JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
			return bt.DeviceDetails(deviceID(r))
		}),
	)
	s.mux.HandleFunc(
		"GET /bluetooth/devices/{device}/battery",
		batteryHandler(bt),
	)
	s.mux.HandleFunc(
		"POST /bluetooth/devices/{device}/connect",
		withDevice(bt.Connect),
	)
	s.mux.HandleFunc(
		"POST /bluetooth/devices/{device}/disconnect",
		withDevice(bt.Disconnect),
	)
	s.mux.HandleFunc(
		"POST /bluetooth/devices/{device}/pair",
		withDevice(bt.Pair),
	)
	s.mux.HandleFunc(
		"POST /bluetooth/devices/{device}/cancel_pairing",
		withDevice(bt.CancelPairing),
	)
	s.mux.HandleFunc(
		"POST /bluetooth/devices/{device}/remove",
		withDevice(bt.RemoveDevice),
	)
	s.mux.HandleFunc(
		"POST /bluetooth/devices/{device}/trust",
		withDevice(bt.ToggleTrusted),
	)
	s.mux.HandleFunc(
		"POST /bluetooth/devices/{device}/block",
		withDevice(bt.ToggleBlocked),
	)
	s.mux.HandleFunc(
		"POST /bluetooth/devices/{device}/alias",
		aliasHandler(bt),
	)
	s.mux.HandleFunc(
		"POST /bluetooth/devices/{device}/profiles/connect",
		profileHandler(bt.ConnectProfile),
	)
	s.mux.HandleFunc(
		"POST /bluetooth/devices/{device}/profiles/disconnect",
		profileHandler(bt.DisconnectProfile),
	)

	// pairing agent
	s.mux.HandleFunc(
		"GET /bluetooth/agent/requests",
		JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
			return bt.PendingAgentRequests()
		}),
	)
	s.mux.HandleFunc(
		"POST /bluetooth/agent/requests/{request}/reply",
		replyHandler(bt),
	)
	s.mux.HandleFunc(
		"POST /bluetooth/agent/requests/{request}/quit",
		quitHandler(bt),
	)
}

func (s *Server) registerSystemdRoutes(sd *systemd.SystemdBackend) {
	s.mux.HandleFunc(
		"GET /daemon",
		JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
			return sd.Unit()
		}),
	)
}
