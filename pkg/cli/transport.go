package cli

import (
	"fmt"
	"strings"
)

// Transport selects how the dongle is reached.
type Transport string

const (
	TransportBLE    Transport = "ble"
	TransportSerial Transport = "serial"
)

var availableTransports = []Transport{TransportBLE, TransportSerial}

type transportType struct {
	config *Config
}

func (t transportType) String() string {
	if t.config == nil {
		return ""
	}
	return string(t.config.Transport)
}

func (t transportType) Set(v string) error {
	if t.config == nil {
		return fmt.Errorf("invalid transportType")
	}
	if v == "" {
		return nil
	}
	value := Transport(strings.ToLower(v))
	for _, name := range availableTransports {
		if name == value {
			t.config.Transport = name
			return nil
		}
	}
	return fmt.Errorf("unsupported transport '%s'", v)
}

func transportNames() string {
	var names []string
	for _, name := range availableTransports {
		names = append(names, string(name))
	}
	return strings.Join(names, "|")
}
