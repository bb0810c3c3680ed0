// Package e1000 implements a behavioral emulator for an Intel 82540EM-class
// Gigabit Ethernet controller: register bank, descriptor ring engines,
// transmit/receive pipelines with TSO and checksum offload, the interrupt
// cause/mask/mitigation state machine, the EEPROM Microwire state machine,
// and PHY/MDI register access.
//
// The device is expressed entirely against the Host capability interface;
// it never touches guest memory, a network socket, or a timer directly.
package e1000

import "time"

// Host is the set of operations the core invokes on its hypervisor-side
// collaborator. A Device is bound to exactly one Host for its lifetime.
type Host interface {
	// Send transmits a fully-formed Ethernet frame and reports the number
	// of bytes accepted, or an error if the host could not send it.
	Send(frame []byte) (int, error)

	// DMAPrepare declares intent to read or write length bytes starting at
	// address. Idempotent; the host must grow its mapping if a later call
	// requests a larger region at the same address.
	DMAPrepare(address uint64, length uint64) error

	// DMARead copies len(buf) bytes from guest memory at address+offset
	// into buf.
	DMARead(address uint64, buf []byte, offset uint64) error

	// DMAWrite copies len(buf) bytes from buf into guest memory at
	// address+offset.
	DMAWrite(address uint64, buf []byte, offset uint64) error

	// TriggerInterrupt asserts the device's interrupt line.
	TriggerInterrupt()

	// SetTimer arms a one-shot monotonic timer. Only one timer is ever
	// armed at a time; a later call replaces an earlier, unfired one.
	SetTimer(d time.Duration)

	// DeleteTimer cancels the armed timer, if any. Safe to call when no
	// timer is armed.
	DeleteTimer()
}
