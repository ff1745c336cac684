package ble

import (
	"context"
	"io"
)

// Target identifies the peripheral to connect to. It is supplied by discovery and borrowed by the
// Link; the Link never rediscovers it.
type Target struct {
	Address string
	Name    string
}

// Advertisement is a BLE advertisement observed during a scan.
type Advertisement struct {
	Address     string
	LocalName   string
	RSSI        int16
	Connectable bool
}

type Adapter interface {
	// Scan reports advertisements to fn until ctx is done.
	Scan(ctx context.Context, fn func(Advertisement)) error
	Connect(ctx context.Context, target Target) (Device, error)
	Close() error
}

type Device interface {
	Service(ctx context.Context, uuid string) (Service, error)
	// Close disconnects from the peripheral.
	Close() error
}

type Service interface {
	Subscribe(uuid string, callback func(buf []byte)) error
	Unsubscribe(uuid string) error
	Tx(uuid string) (Writer, error)
}

type Writer interface {
	io.Writer
	MTU(rxMTU int) (txMTU int, err error)
}
