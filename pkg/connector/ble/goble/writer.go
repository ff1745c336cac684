package goble

import goble "github.com/go-ble/ble"

type writer struct {
	characteristic *goble.Characteristic
	client         goble.Client
}

func (w *writer) Write(bytes []byte) (int, error) {
	// Most ELM327 dongles only expose write-without-response on the TX characteristic.
	noRsp := w.characteristic.Property&goble.CharWrite == 0
	err := w.client.WriteCharacteristic(w.characteristic, bytes, noRsp)
	if err != nil {
		return 0, err
	}

	return len(bytes), err
}

func (w *writer) MTU(rxMTU int) (txMTU int, err error) {
	return w.client.ExchangeMTU(rxMTU)
}
