package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/bringyour/ddp/ddp"
)

// Config is the optional TOML config file. Command line flags override it.
//
//	url = "ws://localhost:3000/websocket"
//	versions = ["1", "pre2", "pre1"]
//	timeout = "30s"
//	verbosity = 0
//
//	[transport]
//	handshake_timeout = "5s"
//	write_timeout = "5s"
//	read_timeout = "60s"
//	ping_timeout = "15s"
//	buffer_size = 32
type Config struct {
	Url      string   `toml:"url"`
	Versions []string `toml:"versions"`
	// how long to wait for the handshake and for results
	Timeout string `toml:"timeout"`
	// glog -v level
	Verbosity int             `toml:"verbosity"`
	Transport TransportConfig `toml:"transport"`
}

type TransportConfig struct {
	HandshakeTimeout string `toml:"handshake_timeout"`
	WriteTimeout     string `toml:"write_timeout"`
	ReadTimeout      string `toml:"read_timeout"`
	PingTimeout      string `toml:"ping_timeout"`
	BufferSize       int    `toml:"buffer_size"`
}

func DefaultConfig() *Config {
	return &Config{
		Url:      "ws://localhost:3000/websocket",
		Versions: ddp.DefaultClientSettings().Versions,
		Timeout:  "30s",
	}
}

// values missing from the file keep their defaults
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return config, nil
}

func (self *Config) TimeoutDuration() (time.Duration, error) {
	return parseDuration("timeout", self.Timeout, 30*time.Second)
}

func (self *Config) Settings() (*ddp.ClientSettings, *ddp.WsTransportSettings, error) {
	clientSettings := ddp.DefaultClientSettings()
	if 0 < len(self.Versions) {
		clientSettings.Versions = self.Versions
	}

	wsSettings := ddp.DefaultWsTransportSettings()
	var err error
	if wsSettings.HandshakeTimeout, err = parseDuration("handshake_timeout", self.Transport.HandshakeTimeout, wsSettings.HandshakeTimeout); err != nil {
		return nil, nil, err
	}
	if wsSettings.WriteTimeout, err = parseDuration("write_timeout", self.Transport.WriteTimeout, wsSettings.WriteTimeout); err != nil {
		return nil, nil, err
	}
	if wsSettings.ReadTimeout, err = parseDuration("read_timeout", self.Transport.ReadTimeout, wsSettings.ReadTimeout); err != nil {
		return nil, nil, err
	}
	if wsSettings.PingTimeout, err = parseDuration("ping_timeout", self.Transport.PingTimeout, wsSettings.PingTimeout); err != nil {
		return nil, nil, err
	}
	if 0 < self.Transport.BufferSize {
		wsSettings.BufferSize = self.Transport.BufferSize
	}
	return clientSettings, wsSettings, nil
}

func parseDuration(name string, value string, defaultValue time.Duration) (time.Duration, error) {
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("Invalid %s (%s).", name, err)
	}
	return d, nil
}
