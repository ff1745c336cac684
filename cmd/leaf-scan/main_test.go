package main

import (
	"testing"

	"github.com/leafobd/obd-ble/pkg/connector/ble"
)

func TestSightings(t *testing.T) {
	s := &sightings{seen: make(map[string]ble.Advertisement)}
	adv := ble.Advertisement{Address: "AA:BB:CC:DD:EE:FF", LocalName: "OBDBLE", RSSI: -60, Connectable: true}
	if !s.add(adv) {
		t.Error("First sighting not reported")
	}
	adv.RSSI = -50
	if s.add(adv) {
		t.Error("Repeated sighting reported")
	}
	if s.seen[adv.Address].RSSI != -50 {
		t.Error("Sighting not updated")
	}
}

func TestMatchesName(t *testing.T) {
	adv := ble.Advertisement{LocalName: "OBDBLE"}
	for prefix, expected := range map[string]bool{"": true, "obd": true, "OBDBLE": true, "vLink": false} {
		if matchesName(adv, prefix) != expected {
			t.Errorf("matchesName(%q) != %v", prefix, expected)
		}
	}
}
