package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/b0bbywan/odio-bluetooth/logger"
)

const (
	AppName     = "odio-bluetooth"
	AppVersion  = "0.1.0"
	serviceType = "_http._tcp"
	domain      = "local."
)

// Agent prompt front-ends.
const (
	PromptAPI      = "api"
	PromptTerminal = "terminal"
)

type Config struct {
	Api       *ApiConfig
	Bluetooth *BluetoothConfig
	Systemd   *SystemdConfig
	Zeroconf  *ZeroConfig
	LogLevel  logger.Level
	LogLevels map[string]logger.Level
}

type ApiConfig struct {
	Enabled bool
	Port    int
	Listens []string
	CORS    *CORSConfig
}

// CORSConfig lists the origins allowed to call the API from a browser.
// "*" allows any origin.
type CORSConfig struct {
	Origins []string
}

type BluetoothConfig struct {
	Enabled bool
	// Timeout bounds every remote call, async ones included.
	Timeout      time.Duration
	ScanInterval time.Duration
	StorageDir   string
	Agent        *AgentConfig
}

type AgentConfig struct {
	Enabled bool
	Prompt  string
	Service string
}

type SystemdConfig struct {
	Enabled bool
	Unit    string
}

type ZeroConfig struct {
	Enabled      bool
	InstanceName string
	ServiceType  string
	Domain       string
	Port         int
	TxtRecords   []string
	Listen       []net.Interface
}

func interfaceForIP(ip string) (*net.Interface, error) {
	if ip == "127.0.0.1" {
		return nil, nil
	}
	listenIP := net.ParseIP(ip)
	if listenIP == nil {
		return nil, fmt.Errorf("invalid bind: %s", ip)
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		addrs, _ := iface.Addrs()
		for _, addr := range addrs {
			var ifaceIP net.IP

			switch v := addr.(type) {
			case *net.IPNet:
				ifaceIP = v.IP
			case *net.IPAddr:
				ifaceIP = v.IP
			}

			if ifaceIP != nil && ifaceIP.Equal(listenIP) {
				return &iface, nil
			}
		}
	}

	return nil, fmt.Errorf("no interface found for IP %s", ip)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.port", 8018)
	v.SetDefault("bind", "127.0.0.1")
	v.SetDefault("api.cors.origins", []string{})

	v.SetDefault("bluetooth.enabled", true)
	v.SetDefault("bluetooth.timeout", "5s")
	v.SetDefault("bluetooth.scan_interval", "2s")
	v.SetDefault("bluetooth.storage_dir", "/var/lib/bluetooth")
	v.SetDefault("bluetooth.agent.enabled", true)
	v.SetDefault("bluetooth.agent.prompt", PromptAPI)
	v.SetDefault("bluetooth.agent.service", "org.odio.Bluetooth")

	v.SetDefault("systemd.enabled", true)
	v.SetDefault("systemd.unit", "bluetooth.service")

	v.SetDefault("zeroconf.enabled", false)

	v.SetDefault("LogLevel", "WARN")
	v.SetDefault("LogLevels", map[string]string{})
}

// New loads the configuration from defaults, the optional config file and the environment.
func New() (*Config, error) {
	v := viper.GetViper()
	setDefaults(v)

	v.SetConfigName("config")                       // name of config file (without extension)
	v.SetConfigType("yaml")                         // config file format
	v.AddConfigPath(filepath.Join("/etc", AppName)) // Global configuration path
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", AppName)) // User config path
	}
	v.SetEnvPrefix("ODIO_BT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional, continue with defaults if not found
		if _, isNotFound := err.(viper.ConfigFileNotFoundError); !isNotFound {
			logger.Warn("[config] failed to read config: %v", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	port := v.GetInt("api.port")
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", port)
	}

	bind := v.GetString("bind")
	var interfaces []net.Interface
	inet, err := interfaceForIP(bind)
	if err == nil && inet != nil {
		interfaces = append(interfaces, *inet)
	}

	timeout := v.GetDuration("bluetooth.timeout")
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	scanInterval := v.GetDuration("bluetooth.scan_interval")
	if scanInterval <= 0 {
		scanInterval = 2 * time.Second
	}

	prompt := v.GetString("bluetooth.agent.prompt")
	switch prompt {
	case PromptAPI, PromptTerminal:
	default:
		return nil, fmt.Errorf("invalid agent prompt: %q", prompt)
	}

	apiCfg := ApiConfig{
		Enabled: v.GetBool("api.enabled"),
		Port:    port,
		Listens: []string{net.JoinHostPort(bind, fmt.Sprint(port))},
	}
	if origins := v.GetStringSlice("api.cors.origins"); len(origins) > 0 {
		apiCfg.CORS = &CORSConfig{Origins: origins}
	}

	btCfg := BluetoothConfig{
		Enabled:      v.GetBool("bluetooth.enabled"),
		Timeout:      timeout,
		ScanInterval: scanInterval,
		StorageDir:   v.GetString("bluetooth.storage_dir"),
		Agent: &AgentConfig{
			Enabled: v.GetBool("bluetooth.agent.enabled"),
			Prompt:  prompt,
			Service: v.GetString("bluetooth.agent.service"),
		},
	}

	sysCfg := SystemdConfig{
		Enabled: v.GetBool("systemd.enabled"),
		Unit:    v.GetString("systemd.unit"),
	}

	zeroCfg := ZeroConfig{
		Enabled:      v.GetBool("zeroconf.enabled") && apiCfg.Enabled,
		InstanceName: AppName,
		ServiceType:  serviceType,
		Port:         port,
		Domain:       domain,
		TxtRecords:   []string{"version=" + AppVersion},
		Listen:       interfaces,
	}

	levels := make(map[string]logger.Level)
	for component, name := range v.GetStringMapString("LogLevels") {
		levels[component] = logger.ParseLevel(name, logger.WARN)
	}

	return &Config{
		Api:       &apiCfg,
		Bluetooth: &btCfg,
		Systemd:   &sysCfg,
		Zeroconf:  &zeroCfg,
		LogLevel:  logger.ParseLevel(v.GetString("LogLevel"), logger.WARN),
		LogLevels: levels,
	}, nil
}
