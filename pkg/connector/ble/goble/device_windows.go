package goble

import (
	"errors"

	"github.com/go-ble/ble"
)

var errNoWindowsDriver = errors.New("go-ble has no Windows driver")

func IsAdapterError(err error) bool {
	return errors.Is(err, errNoWindowsDriver)
}

// Wired and classic Bluetooth (SPP) adapters show up as COM ports and work over serial.
func AdapterErrorHelpMessage(err error) string {
	return "Failed to initialize BLE adapter: " + err.Error() + "\n" +
		"Pair the dongle as a serial device and run with -transport serial -serial-device COM<n> " +
		"(or set LEAF_OBD_SERIAL_DEVICE)."
}

func newDevice(_ string) (ble.Device, error) {
	return nil, errNoWindowsDriver
}
