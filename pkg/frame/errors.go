package frame

import "errors"

// Decode/encode failures. All are recoverable: callers drop the frame and
// increment a counter rather than treating these as fatal.
var (
	ErrBadVersion             = errors.New("frame: bad version")
	ErrLengthMismatch         = errors.New("frame: length mismatch")
	ErrOptionTooLong          = errors.New("frame: option too long")
	ErrUnknownCriticalOption  = errors.New("frame: unknown critical option")
	ErrBadCRC                 = errors.New("frame: bad crc")
	ErrFragmentTimeout        = errors.New("frame: fragment reassembly timed out")
	ErrShortBuffer            = errors.New("frame: buffer shorter than minimum frame size")
	ErrOptionsOverflow        = errors.New("frame: options length exceeds maximum")
	ErrBadTensorAlignment     = errors.New("frame: tensor alignment is not a power of two")
)
