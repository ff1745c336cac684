package goble

import (
	"context"
	"errors"
	"fmt"

	goble "github.com/go-ble/ble"

	"github.com/leafobd/obd-ble/pkg/connector/ble"
)

type device struct {
	client goble.Client
}

func (c *device) Service(_ context.Context, uuid string) (ble.Service, error) {
	id, err := goble.Parse(uuid)
	if err != nil {
		return nil, fmt.Errorf("ble: invalid service uuid %s: %s", uuid, err)
	}
	services, err := c.client.DiscoverServices([]goble.UUID{id})
	if err != nil {
		return nil, fmt.Errorf("ble: failed to enumerate device services: %s", err)
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("ble: failed to discover service %s", uuid)
	}

	return &service{client: c.client, service: services[0]}, nil
}

func (c *device) Close() error {
	client := c.client
	if client == nil {
		return nil
	}
	c.client = nil

	err1 := client.ClearSubscriptions()
	err2 := client.CancelConnection()

	return errors.Join(err1, err2)
}
