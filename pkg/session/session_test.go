package session_test

import (
	"bytes"
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/leafobd/obd-ble/mocks"
	"github.com/leafobd/obd-ble/pkg/connector"
	"github.com/leafobd/obd-ble/pkg/protocol"
	"github.com/leafobd/obd-ble/pkg/session"
)

// dongle scripts a mock port: every write queues the reply registered for that request.
type dongle struct {
	replies map[string][]string // Consumed in order; the last reply repeats.
	pending []byte
	sent    []string
	hook    func(request string) error
}

func (d *dongle) write(_ context.Context, p []byte) error {
	request := string(bytes.TrimSpace(p))
	d.sent = append(d.sent, request)
	if d.hook != nil {
		if err := d.hook(request); err != nil {
			return err
		}
	}
	replies := d.replies[request]
	if len(replies) == 0 {
		d.pending = append(d.pending, "?\r\n\r\n>"...)
		return nil
	}
	d.pending = append(d.pending, replies[0]...)
	if len(replies) > 1 {
		d.replies[request] = replies[1:]
	}
	return nil
}

func (d *dongle) readLine(context.Context) ([]byte, error) {
	i := bytes.IndexByte(d.pending, '\n')
	if i < 0 {
		return nil, protocol.ErrReadTimeout
	}
	line := d.pending[:i+1]
	d.pending = d.pending[i+1:]
	return line, nil
}

var _ = Describe("Session", func() {
	var (
		ctrl    *gomock.Controller
		port    *mocks.Port
		dev     *dongle
		opens   int
		openErr error
		config  session.Config
		sess    *session.Session

		probe   = &protocol.Command{Name: "probe", Request: "0100", Probe: true, Decode: protocol.Hex("pids")}
		voltage = &protocol.Command{Name: "voltage", Request: "ATRV", Decode: protocol.Voltage("adapter_voltage")}
		vin     = &protocol.Command{Name: "vin", Request: "0902", Decode: protocol.Raw("vin")}
		reset   = &protocol.Command{Name: "reset", Request: "ATZ"}
	)

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		port = mocks.NewPort(ctrl)
		dev = &dongle{replies: map[string][]string{
			"ATZ":  {"ATZ\r\n\r\nELM327 v1.5\r\n\r\n>"},
			"0100": {"0100\r\n41 00 BE 1F A8 13\r\n\r\n>"},
			"ATRV": {"ATRV\r\n12.6V\r\n\r\n>"},
			"0902": {"0902\r\n49 02 01 4A 4E\r\n\r\n>"},
		}}
		opens = 0
		openErr = nil

		config = session.DefaultConfig()
		config.RetryInterval = time.Millisecond
		config.Init = []*protocol.Command{reset}
		config.Commands = []*protocol.Command{probe, voltage, vin}

		port.EXPECT().ResetInputBuffer().Do(func() { dev.pending = nil }).AnyTimes()
		port.EXPECT().Write(gomock.Any(), gomock.Any()).DoAndReturn(dev.write).AnyTimes()
		port.EXPECT().ReadLine(gomock.Any()).DoAndReturn(dev.readLine).AnyTimes()
	})

	JustBeforeEach(func() {
		sess = session.New(func(context.Context) (connector.Port, error) {
			opens++
			if openErr != nil {
				return nil, openErr
			}
			return port, nil
		}, config)
	})

	It("runs the catalog and merges the values", func() {
		port.EXPECT().SetTimeout(config.CommandTimeout)
		port.EXPECT().Close()

		values, err := sess.Fetch(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(values).To(HaveKeyWithValue("adapter_voltage", 12.6))
		Expect(values).To(HaveKeyWithValue("vin", "49 02 01 4A 4E"))
		Expect(values).To(HaveKey("pids"))
		Expect(dev.sent).To(Equal([]string{"ATZ", "0100", "ATRV", "0902"}))
		Expect(opens).To(Equal(1))
		Expect(sess.Commands()).To(HaveLen(3))
	})

	It("stops after a probe without data", func() {
		dev.replies["0100"] = []string{"0100\r\nSEARCHING...\r\nNO DATA\r\n\r\n>"}
		port.EXPECT().SetTimeout(gomock.Any())
		port.EXPECT().Close()

		values, err := sess.Fetch(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(values).To(BeEmpty())
		Expect(dev.sent).To(Equal([]string{"ATZ", "0100"}))
	})

	It("skips commands that fail", func() {
		dev.replies["ATRV"] = []string{"ATRV\r\n?\r\n\r\n>"}
		port.EXPECT().SetTimeout(gomock.Any())
		port.EXPECT().Close()

		values, err := sess.Fetch(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(values).NotTo(HaveKey("adapter_voltage"))
		Expect(values).To(HaveKey("vin"))
		// Protocol errors are not retried.
		Expect(dev.sent).To(Equal([]string{"ATZ", "0100", "ATRV", "0902"}))
	})

	It("retries a command that timed out", func() {
		dev.replies["ATRV"] = []string{"", "ATRV\r\n12.5V\r\n\r\n>"}
		port.EXPECT().SetTimeout(gomock.Any())
		port.EXPECT().Close()

		values, err := sess.Fetch(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(values).To(HaveKeyWithValue("adapter_voltage", 12.5))
		Expect(dev.sent).To(Equal([]string{"ATZ", "0100", "ATRV", "ATRV", "0902"}))
	})

	It("continues when an init command fails", func() {
		dev.replies["ATZ"] = []string{""}
		port.EXPECT().SetTimeout(gomock.Any())
		port.EXPECT().Close()

		values, err := sess.Fetch(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(values).To(HaveLen(3))
	})

	It("fails the update when the port cannot be opened", func() {
		openErr = protocol.ErrConnection

		values, err := sess.Fetch(context.Background())
		Expect(values).To(BeNil())
		Expect(err).To(MatchError(protocol.ErrUpdateFailed))
		Expect(err).To(MatchError(protocol.ErrConnection))
	})

	It("stops when the context is done", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		port.EXPECT().SetTimeout(gomock.Any())
		port.EXPECT().Close()
		dev.hook = func(request string) error {
			if request == "0100" {
				cancel()
			}
			return nil
		}

		values, err := sess.Fetch(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(values).To(HaveKey("pids"))
		Expect(values).NotTo(HaveKey("adapter_voltage"))
	})

	It("reports a closed port as a command failure", func() {
		port.EXPECT().SetTimeout(gomock.Any())
		port.EXPECT().Close()
		dev.hook = func(request string) error {
			if request == "ATRV" {
				return errors.Join(protocol.ErrWrite, protocol.ErrNotConnected)
			}
			return nil
		}

		values, err := sess.Fetch(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(values).NotTo(HaveKey("adapter_voltage"))
	})
})
