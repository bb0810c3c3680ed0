package e1000

import "fmt"

// descriptorSize is the fixed size, in bytes, of every descriptor on every
// ring (§3).
const descriptorSize = 16

// ring is the descriptor-ring abstraction of §3/§4.2: a circular array of
// descriptorSize-byte slots in guest memory, addressed by a hardware-owned
// head and a software-owned tail.
type ring struct {
	address uint64
	length  uint32
	head    uint32
	tail    uint32
}

func newRing(address uint64, length, head, tail uint32) *ring {
	return &ring{
		address: address,
		length:  length,
		head:    head % length,
		tail:    tail % length,
	}
}

func (r *ring) isEmpty() bool { return r.head == r.tail }

func (r *ring) advanceHead() {
	r.head = (r.head + 1) % r.length
}

func (r *ring) hardwareOwnedDescriptors() uint32 {
	return (r.tail - r.head + r.length) % r.length
}

func (r *ring) slotOffset(index uint32) uint64 {
	return uint64(index) * descriptorSize
}

// readRingHead reads and byte-reverses the descriptor at r.head (§4.2).
func (d *Device) readRingHead(r *ring) ([descriptorSize]byte, error) {
	var buf [descriptorSize]byte
	if r.isEmpty() {
		return buf, ErrEmptyRingHeadAccess
	}
	total := uint64(r.length) * descriptorSize
	if err := d.host.DMAPrepare(r.address, total); err != nil {
		return buf, fmt.Errorf("%w: dma_prepare: %v", ErrDmaFailure, err)
	}
	if err := d.host.DMARead(r.address, buf[:], r.slotOffset(r.head)); err != nil {
		return buf, fmt.Errorf("%w: dma_read: %v", ErrDmaFailure, err)
	}
	reverseInPlace(buf[:])
	return buf, nil
}

// writeRingHead byte-reverses and writes back the descriptor at r.head
// (§4.2). It does not advance the head; callers do that separately once
// all per-descriptor bookkeeping is done.
func (d *Device) writeRingHead(r *ring, buf [descriptorSize]byte) error {
	if r.isEmpty() {
		return ErrEmptyRingHeadAccess
	}
	reverseInPlace(buf[:])
	total := uint64(r.length) * descriptorSize
	if err := d.host.DMAPrepare(r.address, total); err != nil {
		return fmt.Errorf("%w: dma_prepare: %v", ErrDmaFailure, err)
	}
	if err := d.host.DMAWrite(r.address, buf[:], r.slotOffset(r.head)); err != nil {
		return fmt.Errorf("%w: dma_write: %v", ErrDmaFailure, err)
	}
	return nil
}

func reverseInPlace(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
