package e1000

import "fmt"

// Receive delivers one inbound Ethernet frame to the device (§4.4). The
// host should only call this when ReceiveState().IsReady() is true, and
// should hold frames while ReceiveState().ShouldDefer() is true; Receive
// itself does not buffer anything on the core's behalf.
func (d *Device) Receive(frame []byte) error {
	if len(frame) == 0 {
		return fmt.Errorf("e1000: receive called with empty frame")
	}
	if d.rxState == rxOffline || d.rxRing == nil {
		return fmt.Errorf("e1000: receive called while offline")
	}

	buf, err := d.readRingHead(d.rxRing)
	if err != nil {
		return err
	}
	desc := unpackRxDesc(buf)

	if desc.buffer == 0 {
		return ErrUnimplemented
	}

	bufSize := d.rxBufferSize()
	if len(frame) > bufSize {
		return ErrUnimplemented
	}

	adjusted := len(frame)
	if d.rctl&rctlSECRC == 0 {
		adjusted += 4
	}

	if err := d.host.DMAPrepare(desc.buffer, uint64(bufSize)); err != nil {
		return fmt.Errorf("%w: %v", ErrDmaFailure, err)
	}
	if err := d.host.DMAWrite(desc.buffer, frame, 0); err != nil {
		return fmt.Errorf("%w: %v", ErrDmaFailure, err)
	}

	desc.length = uint16(adjusted)
	desc.status |= rxStatusDD | rxStatusEOP | rxStatusIXSM

	if err := d.writeRingHead(d.rxRing, packRxDesc(desc)); err != nil {
		return err
	}
	d.rxRing.advanceHead()
	d.rdh = d.rxRing.head

	d.recomputeRxThrottle()
	d.reportRXT0()
	return nil
}

// recomputeRxThrottle runs the Offline/Online/Throttled transitions of
// §4.4/§4.8.
func (d *Device) recomputeRxThrottle() {
	if d.rxRing == nil || !d.rctlEnabled() {
		d.rxState = rxOffline
		return
	}

	shouldThrottle := d.rxRing.hardwareOwnedDescriptors() <= rxThrottleReserve

	switch {
	case d.rxState == rxOffline:
		if shouldThrottle {
			d.rxState = rxThrottled
		} else {
			d.rxState = rxOnline
		}
	case shouldThrottle:
		d.rxState = rxThrottled
	default:
		d.rxState = rxOnline
	}
}
