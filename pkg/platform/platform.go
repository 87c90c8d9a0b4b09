// Package platform abstracts the boundary between the frame codec and a
// transport backend (in-memory loopback, UDP overlay, or a kernel-bypass
// NIC driver treated as an external collaborator). All variants implement
// the same narrow Platform interface so a Connection can be built against
// Mock in tests and Overlay (or a real bypass backend) in production.
package platform

import "errors"

// ErrEmpty is returned by Recv when no frame is currently available. It is
// not a failure — callers should treat it as "nothing to do right now" and
// suspend via their own wake-up mechanism rather than busy-polling.
var ErrEmpty = errors.New("platform: empty")

// Platform is the downward interface a Connection's multiplexer drives.
type Platform interface {
	// Send transmits frameBytes. It does not retain the slice after
	// returning.
	Send(frameBytes []byte) error
	// Recv reads the next available frame into buf, returning the number
	// of bytes written, or ErrEmpty if nothing is available right now.
	Recv(buf []byte) (int, error)
	// Close releases any resources the platform holds.
	Close() error
}
