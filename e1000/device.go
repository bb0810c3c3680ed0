package e1000

import (
	"time"

	"github.com/sirupsen/logrus"
)

// ReceiveState is the three-valued receive lifecycle described in §4.8.
type ReceiveState int

const (
	rxOffline ReceiveState = iota
	rxOnline
	rxThrottled
)

// IsReady reports whether the host may call Receive.
func (s ReceiveState) IsReady() bool { return s != rxOffline }

// ShouldDefer reports whether the host should hold inbound frames rather
// than deliver them right now.
func (s ReceiveState) ShouldDefer() bool { return s == rxThrottled }

func (s ReceiveState) String() string {
	switch s {
	case rxOffline:
		return "offline"
	case rxOnline:
		return "online"
	case rxThrottled:
		return "throttled"
	default:
		return "unknown"
	}
}

// rxThrottleReserve is the hardware-owned-descriptor threshold at or below
// which the receive state machine transitions to Throttled.
const rxThrottleReserve = 1

// mitigationRecord is the optional interrupt-mitigation window described in
// §4.5.
type mitigationRecord struct {
	expiration     time.Time
	interruptAfter bool
}

// txSeqState accumulates a transmit-descriptor sequence while the TX ring
// is being drained (§3, "Transmit sequence accumulator").
type txSeqState struct {
	bytes             []byte
	eop               bool
	context           *txContext
	insertIPChecksum  bool
	insertTCPChecksum bool
	latchedOpts       bool
}

func (s *txSeqState) reset() {
	*s = txSeqState{}
}

// Device is the e1000 behavioral model. It holds all emulated device state
// and is driven entirely through its exported entry points; it never
// touches guest memory, the network, or a timer except through its bound
// Host.
type Device struct {
	host Host
	log  *logrus.Entry
	now  func() time.Time

	mitigateInterrupts bool

	ctrl   uint32
	status uint32
	eecd   uint32
	mdic   uint32

	icr uint32
	ims uint32
	itr uint32

	rctl uint32
	tctl uint32

	rdbal, rdbah, rdlen, rdh, rdt uint32
	tdbal, tdbah, tdlen, tdh, tdt uint32

	ral0, rah0 uint32

	bar1Offset uint32

	rxRing  *ring
	txRing  *ring
	rxState ReceiveState

	phy    phyState
	eeprom eepromState

	mitigation *mitigationRecord
	timerArmed bool

	txSeq txSeqState
}

// New constructs a Device bound to host. mitigateInterrupts enables the
// ITR-based interrupt-mitigation state machine described in §4.5; when
// false the device fires every candidate interrupt immediately regardless
// of ITR.
func New(host Host, mitigateInterrupts bool) *Device {
	d := &Device{
		host:               host,
		log:                logrus.NewEntry(logrus.StandardLogger()),
		now:                time.Now,
		mitigateInterrupts: mitigateInterrupts,
	}
	d.eeprom.init()
	d.Reset()
	return d
}

// SetLogger overrides the ambient logging sink (default: the standard
// logrus logger). Primarily useful for tests and for hosts that want
// per-device log fields.
func (d *Device) SetLogger(log *logrus.Entry) {
	if log == nil {
		return
	}
	d.log = log
}

// SetEthernetAddress sets the station MAC address in the EEPROM's initial
// image and repacks it (§4.6, "Initial image packing"). Intended to be
// called once, before the device is first reset by its host, to give the
// emulated NIC a station address distinct from the zero default.
func (d *Device) SetEthernetAddress(mac [6]byte) {
	d.eeprom.setEthernetAddress(mac)
	d.eeprom.packInitialImage()
	d.loadStationAddress()
}

// ReceiveState reports the current receive lifecycle state (§4.8).
func (d *Device) ReceiveState() ReceiveState {
	return d.rxState
}

func (d *Device) loadStationAddress() {
	mac := d.eeprom.stationAddress()
	d.ral0 = uint32(mac[0]) | uint32(mac[1])<<8 | uint32(mac[2])<<16 | uint32(mac[3])<<24
	d.rah0 = uint32(mac[4]) | uint32(mac[5])<<8
}

// Reset performs the full device reset described in §4.9. It is invoked
// both by the host's own reset entry point and internally when the guest
// writes CTRL.RST.
func (d *Device) Reset() {
	d.rxState = rxOffline

	d.ctrl = 0
	d.status = 0
	d.eecd = eecdPresent | eecdGrant
	d.mdic = 0
	d.icr = 0
	d.ims = 0
	d.itr = 0
	d.rctl = 0
	d.tctl = 0
	d.rdbal, d.rdbah, d.rdlen, d.rdh, d.rdt = 0, 0, 0, 0, 0
	d.tdbal, d.tdbah, d.tdlen, d.tdh, d.tdt = 0, 0, 0, 0, 0
	d.bar1Offset = 0

	d.loadStationAddress()

	d.phy.reset()

	d.rxRing = nil
	d.txRing = nil
	d.txSeq.reset()

	if d.timerArmed {
		d.host.DeleteTimer()
		d.timerArmed = false
	}
	d.mitigation = nil

	d.log.Debug("e1000: device reset")
}
