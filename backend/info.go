package backend

import (
	"bufio"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/b0bbywan/odio-bluetooth/config"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

const (
	UNKNOWN         = "unknown"
	OS_RELEASE_FILE = "/etc/os-release"
)

var osVersion string

type ServerDeviceInfo struct {
	Hostname   string   `json:"hostname"`
	OSPlatform string   `json:"os_platform"`
	OSVersion  string   `json:"os_version"`
	APISW      string   `json:"api_sw"`
	APIVersion string   `json:"api_version"`
	Backends   Backends `json:"backends"`
	// Adapter is the compact adapter status line, e.g. "Bluetooth[P,Pa]".
	Adapter string `json:"adapter,omitempty"`
	// Daemon is the active state of the Bluetooth daemon unit.
	Daemon string `json:"daemon,omitempty"`
}

type Backends struct {
	Bluetooth bool `json:"bluetooth"`
	Agent     bool `json:"agent"`
	Systemd   bool `json:"systemd"`
	Zeroconf  bool `json:"zeroconf"`
}

func init() {
	osVersion = readOSRelease()
}

func parseKeyValue(r io.Reader) (map[string]string, error) {
	out := make(map[string]string)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		out[key] = strings.Trim(value, `"`)
	}

	return out, scanner.Err()
}

func readOSRelease() string {
	file, err := os.Open(OS_RELEASE_FILE)
	if err != nil {
		return UNKNOWN
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Warn("[backend] failed to close %s: %v", OS_RELEASE_FILE, err)
		}
	}()

	var content map[string]string
	content, err = parseKeyValue(file)
	if err != nil {
		logger.Debug("[backend] failed to parse %s: %v", OS_RELEASE_FILE, err)
	}

	switch {
	case content["PRETTY_NAME"] != "":
		return content["PRETTY_NAME"]
	case content["NAME"] != "":
		return content["NAME"]
	default:
		return UNKNOWN
	}
}

func (b *Backend) GetServerDeviceInfo() (ServerDeviceInfo, error) {
	hostname, err := os.Hostname()
	if err != nil {
		logger.Debug("[backend] failed to get hostname: %v", err)
		hostname = UNKNOWN
	}

	info := ServerDeviceInfo{
		Hostname:   hostname,
		OSPlatform: runtime.GOOS + "/" + runtime.GOARCH,
		OSVersion:  osVersion,
		APISW:      config.AppName,
		APIVersion: config.AppVersion,
		Backends: Backends{
			Bluetooth: b.Bluetooth != nil,
			Agent:     b.Bluetooth != nil && b.Bluetooth.AgentEnabled(),
			Systemd:   b.Systemd != nil,
			Zeroconf:  b.Zeroconf != nil,
		},
	}

	// Both are best effort: the daemon may be down or have no adapter.
	if b.Bluetooth != nil {
		if st, err := b.Bluetooth.Status(); err == nil {
			info.Adapter = st.Line
		} else {
			logger.Debug("[backend] adapter status unavailable: %v", err)
		}
	}
	if b.Systemd != nil {
		if unit, err := b.Systemd.Unit(); err == nil {
			info.Daemon = unit.ActiveState
		}
	}
	return info, nil
}
