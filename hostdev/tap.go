// Package hostdev provides a reference host-side implementation of the
// e1000 package's Host interface: a Linux TAP transport, a flat guest
// memory arena, a real-time interrupt-mitigation timer and a single
// interrupt line, wired together into one runnable NIC.
package hostdev

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// maxFrameSize bounds a single TAP read; it comfortably covers a full
// jumbo-free Ethernet frame plus VLAN tag.
const maxFrameSize = 2048

// TapDevice is a Linux TUN/TAP transport carrying raw Ethernet frames
// to and from the host network stack.
type TapDevice struct {
	fd   int
	name string
}

// NewTapDevice opens and configures a TAP interface named name.
func NewTapDevice(name string) (*TapDevice, error) {
	fd, err := syscall.Open("/dev/net/tun", syscall.O_RDWR|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("hostdev: open /dev/net/tun: %w", err)
	}

	var ifr struct {
		Name  [16]byte
		Flags uint16
		_     [2]byte
	}
	copy(ifr.Name[:], name)
	ifr.Flags = unix.IFF_TAP | unix.IFF_NO_PI

	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), uintptr(unix.TUNSETIFF), uintptr(unsafe.Pointer(&ifr))); errno != 0 {
		syscall.Close(fd)
		return nil, fmt.Errorf("hostdev: TUNSETIFF on %s: %w", name, errno)
	}

	return &TapDevice{fd: fd, name: name}, nil
}

// ReadFrame reads the next inbound Ethernet frame without blocking (the fd
// is opened non-blocking). A nil slice with a nil error means no frame is
// currently available.
func (t *TapDevice) ReadFrame() ([]byte, error) {
	buf := make([]byte, maxFrameSize)
	n, err := syscall.Read(t.fd, buf)
	if err != nil {
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
			return nil, nil
		}
		return nil, fmt.Errorf("hostdev: read from tap %s: %w", t.name, err)
	}
	return buf[:n], nil
}

// WriteFrame sends an Ethernet frame out through the TAP interface. It
// implements the transmit side of e1000.Host.
func (t *TapDevice) WriteFrame(frame []byte) (int, error) {
	n, err := syscall.Write(t.fd, frame)
	if err != nil {
		return 0, fmt.Errorf("hostdev: write to tap %s: %w", t.name, err)
	}
	return n, nil
}

// Close releases the TAP file descriptor.
func (t *TapDevice) Close() error {
	if t.fd == 0 {
		return nil
	}
	return syscall.Close(t.fd)
}
