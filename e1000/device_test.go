package e1000_test

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/vnet-systems/e1000emu/e1000"
)

// MockHost implements e1000.Host over a sparse in-memory map, mirroring
// the reference NE2000 test suite's MockTapDevice/MockInterruptRaiser
// pair: function-call recorders plus a minimal working backend.
type MockHost struct {
	mu sync.Mutex

	mem map[uint64]byte

	sentFrames  [][]byte
	sendErr     error
	interrupts  int
	timerSets   []time.Duration
	timerDeletes int
}

func newMockHost() *MockHost {
	return &MockHost{mem: make(map[uint64]byte)}
}

func (h *MockHost) Send(frame []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sendErr != nil {
		return 0, h.sendErr
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	h.sentFrames = append(h.sentFrames, cp)
	return len(frame), nil
}

func (h *MockHost) DMAPrepare(address uint64, length uint64) error { return nil }

func (h *MockHost) DMARead(address uint64, buf []byte, offset uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range buf {
		buf[i] = h.mem[address+offset+uint64(i)]
	}
	return nil
}

func (h *MockHost) DMAWrite(address uint64, buf []byte, offset uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range buf {
		h.mem[address+offset+uint64(i)] = b
	}
	return nil
}

func (h *MockHost) TriggerInterrupt() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.interrupts++
}

func (h *MockHost) SetTimer(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timerSets = append(h.timerSets, d)
}

func (h *MockHost) DeleteTimer() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timerDeletes++
}

func (h *MockHost) interruptCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupts
}

func (h *MockHost) writeRaw(address uint64, b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, v := range b {
		h.mem[address+uint64(i)] = v
	}
}

func (h *MockHost) readRaw(address uint64, n int) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]byte, n)
	for i := range out {
		out[i] = h.mem[address+uint64(i)]
	}
	return out
}

// reverseBytes matches the ring engine's own byte-reversal transform
// (§3, §9 "Endianness"): the packed representation is stored reversed in
// the 16-byte guest slot.
func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

func bar0Write(t *testing.T, d *e1000.Device, offset uint32, value uint32) {
	t.Helper()
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, value)
	if err := d.BAR0Access(offset, buf, true); err != nil {
		t.Fatalf("BAR0 write at 0x%x failed: %v", offset, err)
	}
}

func bar0Read(t *testing.T, d *e1000.Device, offset uint32) uint32 {
	t.Helper()
	buf := make([]byte, 4)
	if err := d.BAR0Access(offset, buf, false); err != nil {
		t.Fatalf("BAR0 read at 0x%x failed: %v", offset, err)
	}
	return binary.LittleEndian.Uint32(buf)
}

const (
	regCTRL  = 0x0000
	regSTATUS = 0x0008
	regICR   = 0x00C0
	regIMS   = 0x00D0

	regRCTL  = 0x0100

	regRDBAL = 0x2800
	regRDBAH = 0x2804
	regRDLEN = 0x2808
	regRDH   = 0x2810
	regRDT   = 0x2818
)

func TestBringUpSetsLinkUpAndRaisesLSC(t *testing.T) {
	host := newMockHost()
	d := e1000.New(host, false)

	bar0Write(t, d, regIMS, 1<<2) // LSC

	bar0Write(t, d, regCTRL, 1<<6) // CTRL.SLU

	status := bar0Read(t, d, regSTATUS)
	if status&(1<<1) == 0 {
		t.Fatalf("expected STATUS.LU set, got 0x%x", status)
	}
	if got := host.interruptCount(); got != 1 {
		t.Fatalf("expected exactly one trigger_interrupt, got %d", got)
	}
}

func TestBringUpWithoutIMSRaisesNoInterrupt(t *testing.T) {
	host := newMockHost()
	d := e1000.New(host, false)

	bar0Write(t, d, regCTRL, 1<<6)

	if got := host.interruptCount(); got != 0 {
		t.Fatalf("expected no interrupt with IMS clear, got %d", got)
	}
}

func configureRxRing(t *testing.T, d *e1000.Device, base uint64, descriptors uint32, head, tail uint32) {
	t.Helper()
	bar0Write(t, d, regRDBAL, uint32(base))
	bar0Write(t, d, regRDBAH, uint32(base>>32))
	bar0Write(t, d, regRDLEN, descriptors*16)
	bar0Write(t, d, regRDH, head)
	bar0Write(t, d, regRDT, tail)
	bar0Write(t, d, regRCTL, 1<<1) // RCTL.EN
}

func TestRingConfigurationReachesOnlineState(t *testing.T) {
	host := newMockHost()
	d := e1000.New(host, false)

	configureRxRing(t, d, 0x10000000, 8, 0, 7)

	if got := d.ReceiveState().String(); got != "online" {
		t.Fatalf("expected Online, got %v", got)
	}
}

func TestReceiveSingleFrame(t *testing.T) {
	host := newMockHost()
	d := e1000.New(host, false)
	bar0Write(t, d, regIMS, 1<<7) // RXT0

	configureRxRing(t, d, 0x10000000, 8, 0, 7)

	var slot [16]byte
	binary.LittleEndian.PutUint64(slot[0:8], 0x20000000)
	host.writeRaw(0x10000000, reverseBytes(slot[:]))

	frame := make([]byte, 60)
	for i := range frame {
		frame[i] = 0xAA
	}

	if err := d.Receive(frame); err != nil {
		t.Fatalf("receive failed: %v", err)
	}

	written := host.readRaw(0x20000000, 60)
	for i, b := range written {
		if b != 0xAA {
			t.Fatalf("byte %d of written frame = 0x%x, want 0xAA", i, b)
		}
	}

	wb := reverseBytes(host.readRaw(0x10000000, 16))
	length := binary.LittleEndian.Uint16(wb[8:10])
	status := wb[12]
	if length != 64 {
		t.Fatalf("descriptor length = %d, want 64", length)
	}
	if status&0x3 != 0x3 { // DD | EOP
		t.Fatalf("descriptor status = 0x%x, want DD|EOP set", status)
	}
	if bar0Read(t, d, regRDH) != 1 {
		t.Fatalf("RDH = %d, want 1", bar0Read(t, d, regRDH))
	}
	if got := host.interruptCount(); got != 1 {
		t.Fatalf("expected exactly one candidate interrupt, got %d", got)
	}
}

func TestReceiveWhileOfflineFails(t *testing.T) {
	host := newMockHost()
	d := e1000.New(host, false)
	if err := d.Receive([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error receiving while offline")
	}
}

func TestResetClearsStateAndKeepsStationAddress(t *testing.T) {
	host := newMockHost()
	d := e1000.New(host, false)
	d.SetEthernetAddress([6]byte{0x52, 0x54, 0x00, 0x12, 0x34, 0x56})

	configureRxRing(t, d, 0x10000000, 8, 0, 7)
	bar0Write(t, d, regCTRL, 1<<26) // CTRL.RST

	if got := d.ReceiveState().String(); got != "offline" {
		t.Fatalf("expected Offline after reset, got %v", got)
	}
	if got := bar0Read(t, d, regRCTL); got != 0 {
		t.Fatalf("RCTL not cleared by reset: 0x%x", got)
	}
	ral := bar0Read(t, d, 0x5400)
	rah := bar0Read(t, d, 0x5404)
	if ral == 0 && rah == 0 {
		t.Fatalf("expected station address to survive reset via EEPROM reload")
	}
}

func TestBAR1IndirectRoundTrip(t *testing.T) {
	host := newMockHost()
	d := e1000.New(host, false)

	scratch := make([]byte, 4)
	binary.LittleEndian.PutUint32(scratch, regSTATUS)
	if err := d.BAR1Access(0, scratch, true); err != nil {
		t.Fatalf("BAR1.0 write: %v", err)
	}

	readBack := make([]byte, 4)
	if err := d.BAR1Access(0, readBack, false); err != nil {
		t.Fatalf("BAR1.0 read: %v", err)
	}
	if binary.LittleEndian.Uint32(readBack) != regSTATUS {
		t.Fatalf("BAR1.0 round-trip mismatch: got 0x%x", binary.LittleEndian.Uint32(readBack))
	}
}

func TestBadAccessShapeRejected(t *testing.T) {
	host := newMockHost()
	d := e1000.New(host, false)

	if err := d.BAR0Access(1, make([]byte, 4), false); err == nil {
		t.Fatalf("expected error for unaligned offset")
	}
	if err := d.BAR0Access(0, make([]byte, 3), false); err == nil {
		t.Fatalf("expected error for short data")
	}
	if err := d.BAR1Access(8, make([]byte, 4), false); err == nil {
		t.Fatalf("expected error for unsupported BAR1 offset")
	}
}
