// Package goble implements the ble.Adapter interfaces on top of github.com/go-ble/ble.
package goble

import (
	"context"
	"errors"

	goble "github.com/go-ble/ble"

	"github.com/leafobd/obd-ble/pkg/connector/ble"
	"github.com/leafobd/obd-ble/pkg/protocol"
)

var ErrAdapterInvalidID = protocol.NewError("the bluetooth adapter ID is invalid", false, false)

// NewAdapter opens the host Bluetooth controller. On Linux id selects the HCI device ("hci1" or
// "1"); an empty id selects the default controller.
func NewAdapter(id string) (ble.Adapter, error) {
	device, err := newDevice(id)
	if err != nil {
		return nil, err
	}

	return &adapter{
		device: device,
	}, nil
}

type adapter struct {
	device goble.Device
}

func (s *adapter) Scan(ctx context.Context, fn func(ble.Advertisement)) error {
	err := s.device.Scan(ctx, true, func(a goble.Advertisement) {
		fn(advertisementToBeacon(a))
	})
	// Scan only returns once ctx is done; that is the normal way to stop it.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (s *adapter) Connect(ctx context.Context, target ble.Target) (ble.Device, error) {
	client, err := s.device.Dial(ctx, goble.NewAddr(target.Address))
	if err != nil {
		return nil, err
	}

	return &device{client: client}, nil
}

func (s *adapter) Close() error {
	if s.device == nil {
		return nil
	}

	device := s.device
	s.device = nil
	return device.Stop()
}

func advertisementToBeacon(a goble.Advertisement) ble.Advertisement {
	return ble.Advertisement{
		Address:     a.Addr().String(),
		LocalName:   a.LocalName(),
		RSSI:        int16(a.RSSI()),
		Connectable: a.Connectable(),
	}
}
