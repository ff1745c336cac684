package goble

import (
	"fmt"

	goble "github.com/go-ble/ble"

	"github.com/leafobd/obd-ble/pkg/connector/ble"
)

type service struct {
	client  goble.Client
	service *goble.Service
}

func (s *service) Subscribe(uuid string, callback func(buf []byte)) error {
	characteristic, err := s.discover(uuid)
	if err != nil {
		return err
	}

	if err := s.client.Subscribe(characteristic, false, callback); err != nil {
		return fmt.Errorf("ble: failed to subscribe to %s: %s", uuid, err)
	}

	return nil
}

func (s *service) Unsubscribe(uuid string) error {
	characteristic, err := s.find(uuid)
	if err != nil {
		return err
	}

	if err := s.client.Unsubscribe(characteristic, false); err != nil {
		return fmt.Errorf("ble: failed to unsubscribe from %s: %s", uuid, err)
	}
	return nil
}

func (s *service) Tx(uuid string) (ble.Writer, error) {
	characteristic, err := s.discover(uuid)
	if err != nil {
		return nil, err
	}

	return &writer{
		characteristic: characteristic,
		client:         s.client,
	}, nil
}

// find returns a characteristic discovered earlier without another GATT round trip.
func (s *service) find(uuidStr string) (*goble.Characteristic, error) {
	uuid, err := goble.Parse(uuidStr)
	if err != nil {
		return nil, fmt.Errorf("ble: invalid characteristic uuid %s: %s", uuidStr, err)
	}
	for _, char := range s.service.Characteristics {
		if char.UUID.Equal(uuid) {
			return char, nil
		}
	}
	return s.discover(uuidStr)
}

func (s *service) discover(uuidStr string) (*goble.Characteristic, error) {
	uuid, err := goble.Parse(uuidStr)
	if err != nil {
		return nil, fmt.Errorf("ble: invalid characteristic uuid %s: %s", uuidStr, err)
	}
	characteristics, err := s.client.DiscoverCharacteristics([]goble.UUID{uuid}, s.service)
	if err != nil {
		return nil, fmt.Errorf("ble: failed to discover service characteristics: %s", err)
	}

	var characteristic *goble.Characteristic
	for _, char := range characteristics {
		if char.UUID.Equal(uuid) {
			characteristic = char
			break
		}
	}

	if characteristic == nil {
		return nil, fmt.Errorf("ble: characteristic %s not found", uuidStr)
	}

	if _, err := s.client.DiscoverDescriptors(nil, characteristic); err != nil {
		return nil, fmt.Errorf("ble: couldn't fetch descriptors: %s", err)
	}

	return characteristic, nil
}
