package e1000

import "errors"

// Error kinds returned by the core. Callers that need to distinguish a
// specific failure mode should use errors.Is against these sentinels;
// wrapped causes (from the host) are attached with %w.
var (
	ErrBadAccessShape          = errors.New("e1000: bad access shape")
	ErrUnsupportedIoOffset     = errors.New("e1000: unsupported io offset")
	ErrBadDescriptor           = errors.New("e1000: bad descriptor")
	ErrEmptyRingHeadAccess     = errors.New("e1000: empty ring head access")
	ErrNullTransmitBuffer      = errors.New("e1000: null transmit buffer")
	ErrUnimplemented           = errors.New("e1000: unimplemented")
	ErrDmaFailure              = errors.New("e1000: dma failure")
	ErrSendFailure             = errors.New("e1000: send failure")
	ErrUnsupportedEepromOpcode = errors.New("e1000: unsupported eeprom opcode")
)
