package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/b0bbywan/odio-bluetooth/backend/bluetooth"
)

// BluetoothService is the part of the Bluetooth backend the API drives.
type BluetoothService interface {
	Status() (bluetooth.Status, error)
	AdapterProperties() (map[string]interface{}, error)
	ToggleAdapter(state bluetooth.AdapterState) error
	StartDiscovery() error
	StopDiscovery() error

	ListDevices() ([]bluetooth.DeviceInfo, error)
	GetDevice(id string) (bluetooth.DeviceInfo, error)
	DeviceDetails(id string) (bluetooth.InfoLines, error)
	BatteryLevel(id string) (int64, bool)
	Connect(id string) error
	Disconnect(id string) error
	Pair(id string) error
	CancelPairing(id string) error
	ConnectProfile(id, profile string) error
	DisconnectProfile(id, profile string) error
	RemoveDevice(id string) error
	ToggleTrusted(id string) error
	ToggleBlocked(id string) error
	SetAlias(id, alias string) error

	PendingAgentRequests() ([]bluetooth.Request, error)
	ReplyAgent(id, answer string) error
	QuitAgent(id string) error
}

type profileRequest struct {
	UUID string `json:"uuid"`
}

type aliasRequest struct {
	Alias string `json:"alias"`
}

type answerRequest struct {
	Answer string `json:"answer"`
}

type batteryResponse struct {
	Percentage int64 `json:"percentage"`
}

func validateProfile(req *profileRequest) error {
	if strings.TrimSpace(req.UUID) == "" {
		return errors.New("uuid is required")
	}
	return nil
}

// deviceID accepts a device node name or a MAC address.
func deviceID(r *http.Request) string {
	id := r.PathValue("device")
	if strings.Contains(id, ":") {
		return bluetooth.IDFromAddress(id)
	}
	return id
}

// withDevice runs an action on the device named in the path.
func withDevice(action func(id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accepted(w, action(deviceID(r)))
	}
}

func withAction(action func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accepted(w, action())
	}
}

func toggleAdapterHandler(bt BluetoothService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, ok := bluetooth.ParseAdapterToggle(r.PathValue("property"))
		if !ok {
			http.Error(w, "unknown adapter property", http.StatusNotFound)
			return
		}
		accepted(w, bt.ToggleAdapter(state))
	}
}

func profileHandler(fn func(id, profile string) error) http.HandlerFunc {
	return withBody(validateProfile, func(w http.ResponseWriter, r *http.Request, req *profileRequest) {
		accepted(w, fn(deviceID(r), req.UUID))
	})
}

func aliasHandler(bt BluetoothService) http.HandlerFunc {
	return withBody(nil, func(w http.ResponseWriter, r *http.Request, req *aliasRequest) {
		accepted(w, bt.SetAlias(deviceID(r), req.Alias))
	})
}

func batteryHandler(bt BluetoothService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := deviceID(r)
		if _, err := bt.GetDevice(id); err != nil {
			writeError(w, err)
			return
		}
		lvl, ok := bt.BatteryLevel(id)
		if !ok {
			http.Error(w, "no battery level reported", http.StatusNotFound)
			return
		}
		JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
			return batteryResponse{Percentage: lvl}, nil
		})(w, r)
	}
}

func replyHandler(bt BluetoothService) http.HandlerFunc {
	return withBody(nil, func(w http.ResponseWriter, r *http.Request, req *answerRequest) {
		if err := bt.ReplyAgent(r.PathValue("request"), req.Answer); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func quitHandler(bt BluetoothService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := bt.QuitAgent(r.PathValue("request")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
