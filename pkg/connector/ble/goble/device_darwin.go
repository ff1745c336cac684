package goble

import (
	"strings"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"

	"github.com/leafobd/obd-ble/internal/log"
)

// CoreBluetooth refuses to start while Bluetooth is off or the process lacks permission.
func IsAdapterError(err error) bool {
	return strings.Contains(err.Error(), "manager has invalid state")
}

func AdapterErrorHelpMessage(err error) string {
	return "Failed to initialize BLE adapter: \n\t" + err.Error() + "\n" +
		"Turn Bluetooth on and allow the terminal under System Settings > Privacy & Security > " +
		"Bluetooth. macOS hides dongle MAC addresses: use the peripheral UUID printed by " +
		"leaf-scan as the address."
}

func newDevice(id string) (ble.Device, error) {
	if id != "" {
		log.Warning("Darwin does not support selecting a Bluetooth adapter, ignoring '%s'", id)
		return nil, ErrAdapterInvalidID
	}
	device, err := darwin.NewDevice()
	if err != nil {
		return nil, err
	}
	return device, nil
}
