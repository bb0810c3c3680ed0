package hostdev

import "fmt"

// GuestMemory is a flat, bounds-checked view of guest-physical memory used
// to satisfy e1000.Host's DMAPrepare/DMARead/DMAWrite trio. Nothing in the
// retrieved dependency pack models "guest physical memory as addressable
// Go memory" as a library concern; this stays a plain byte slice, the same
// choice the reference virtual machine wiring makes for its own RAM.
type GuestMemory struct {
	bytes []byte
}

// NewGuestMemory allocates size bytes of zeroed guest memory.
func NewGuestMemory(size uint64) *GuestMemory {
	return &GuestMemory{bytes: make([]byte, size)}
}

// DMAPrepare validates that [address, address+length) lies within guest
// memory, growing the backing arena when the guest asks for a window past
// its current high-water mark. This reference host has no IOMMU or access
// permissions to enforce beyond the bound check and growth itself.
func (m *GuestMemory) DMAPrepare(address uint64, length uint64) error {
	end := address + length
	if end < address {
		return fmt.Errorf("hostdev: dma range [0x%x, 0x%x) overflows", address, end)
	}
	if end > uint64(len(m.bytes)) {
		grown := make([]byte, end)
		copy(grown, m.bytes)
		m.bytes = grown
	}
	return nil
}

// DMARead copies len(buf) bytes starting at address+offset into buf.
func (m *GuestMemory) DMARead(address uint64, buf []byte, offset uint64) error {
	start := address + offset
	end := start + uint64(len(buf))
	if end < start || end > uint64(len(m.bytes)) {
		return fmt.Errorf("hostdev: dma read [0x%x, 0x%x) out of bounds", start, end)
	}
	copy(buf, m.bytes[start:end])
	return nil
}

// DMAWrite copies buf into guest memory starting at address+offset.
func (m *GuestMemory) DMAWrite(address uint64, buf []byte, offset uint64) error {
	start := address + offset
	end := start + uint64(len(buf))
	if end < start || end > uint64(len(m.bytes)) {
		return fmt.Errorf("hostdev: dma write [0x%x, 0x%x) out of bounds", start, end)
	}
	copy(m.bytes[start:end], buf)
	return nil
}
