package hostdev

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vnet-systems/e1000emu/e1000"
)

// receivePollInterval paces the RX poll loop's TAP reads when no frame is
// immediately available.
const receivePollInterval = 2 * time.Millisecond

// Host wires a TAP transport, a flat guest memory arena, a single
// interrupt line and a real-time mitigation timer into one implementation
// of e1000.Host, the same way the reference virtual machine wires its
// PIC/PIT/NE2000 trio together around a shared guest memory mapping.
type Host struct {
	log    *logrus.Entry
	mem    *GuestMemory
	tap    *TapDevice
	irq    *IRQLine
	timer  *DeviceTimer
	device *e1000.Device

	// coreMu serializes every call into device: the TAP poll loop's Receive
	// and the timer callback's TimerElapsed run on separate goroutines, and
	// the core itself is not safe for concurrent entry.
	coreMu sync.Mutex

	stopPoll chan struct{}
}

// NewHost allocates guest memory and opens tapName, returning a Host ready
// to be bound to an e1000.Device via Bind.
func NewHost(memorySize uint64, tapName string, irqLine uint8, log *logrus.Entry) (*Host, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	tap, err := NewTapDevice(tapName)
	if err != nil {
		return nil, err
	}

	h := &Host{
		log: log,
		mem: NewGuestMemory(memorySize),
		tap: tap,
	}
	h.irq = NewIRQLine(irqLine, nil)
	h.timer = NewDeviceTimer(func() {
		h.coreMu.Lock()
		defer h.coreMu.Unlock()
		if h.device != nil {
			h.device.TimerElapsed()
		}
	})
	return h, nil
}

// Bind attaches the e1000.Device this host will drive. Call it once,
// immediately after e1000.New(host, ...), before starting the poll loop.
func (h *Host) Bind(device *e1000.Device) {
	h.device = device
}

// Close tears down the TAP file descriptor and stops the poll loop if
// running.
func (h *Host) Close() error {
	h.StopPolling()
	h.timer.Delete()
	return h.tap.Close()
}

// e1000.Host implementation.

func (h *Host) Send(frame []byte) (int, error) {
	return h.tap.WriteFrame(frame)
}

func (h *Host) DMAPrepare(address uint64, length uint64) error {
	return h.mem.DMAPrepare(address, length)
}

func (h *Host) DMARead(address uint64, buf []byte, offset uint64) error {
	return h.mem.DMARead(address, buf, offset)
}

func (h *Host) DMAWrite(address uint64, buf []byte, offset uint64) error {
	return h.mem.DMAWrite(address, buf, offset)
}

func (h *Host) TriggerInterrupt() {
	h.irq.Raise()
}

func (h *Host) SetTimer(d time.Duration) {
	h.timer.Set(d)
}

func (h *Host) DeleteTimer() {
	h.timer.Delete()
}

// RaisedInterruptCount reports how many times this host's single IRQ line
// has been asserted, mainly for tests and the demo CLI.
func (h *Host) RaisedInterruptCount() int {
	return h.irq.RaisedCount()
}

// StartPolling launches a goroutine that reads frames off the TAP
// interface and feeds them to the bound device's Receive, holding frames
// while the device's receive state asks the host to defer, mirroring the
// reference VCPU's own background run loop.
func (h *Host) StartPolling() {
	if h.stopPoll != nil {
		return
	}
	h.stopPoll = make(chan struct{})
	go h.pollLoop(h.stopPoll)
}

// StopPolling stops a previously started poll loop. Safe to call even if
// polling was never started.
func (h *Host) StopPolling() {
	if h.stopPoll == nil {
		return
	}
	close(h.stopPoll)
	h.stopPoll = nil
}

func (h *Host) pollLoop(stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		h.coreMu.Lock()
		state := h.device.ReceiveState()
		h.coreMu.Unlock()
		if !state.IsReady() || state.ShouldDefer() {
			time.Sleep(receivePollInterval)
			continue
		}

		frame, err := h.tap.ReadFrame()
		if err != nil {
			h.log.WithError(err).Warn("hostdev: tap read failed")
			time.Sleep(receivePollInterval)
			continue
		}
		if frame == nil {
			time.Sleep(receivePollInterval)
			continue
		}

		h.coreMu.Lock()
		err = h.device.Receive(frame)
		h.coreMu.Unlock()
		if err != nil {
			h.log.WithError(err).Warn("hostdev: device rejected inbound frame")
		}
	}
}
