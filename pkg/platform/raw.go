package platform

import (
	"fmt"

	"github.com/higebu/netfd"
	"golang.org/x/sys/unix"
)

// RawSocketPlatform wraps a real net.PacketConn (typically a UDP socket
// also used as an OverlayPlatform's transport) and tunes its kernel socket
// buffers directly via the raw file descriptor. It is a concrete,
// testable stand-in for the out-of-scope kernel-bypass backends (spec.md
// §1): it satisfies the Platform contract without claiming DPDK/XDP-grade
// performance.
//
// The fd-extraction technique is the same one the teacher uses to reach a
// connection's raw socket for TCP_INFO: sockstats.go and wrap.go both do
// `tcpConn.SyscallConn()` then `rawConn.Control(func(fd uintptr) {...})`.
// netfd.GetFdFromConn gives the same raw fd without that extra ceremony,
// so it is used here for buffer tuning via unix.SetsockoptInt.
type RawSocketPlatform struct {
	*OverlayPlatform
}

// NewRawSocketPlatform builds an OverlayPlatform-backed transport and
// tunes its socket receive/send buffers to the requested sizes.
func NewRawSocketPlatform(localAddr, peerAddr string, vni uint32, rcvBuf, sndBuf int) (*RawSocketPlatform, error) {
	op, err := NewOverlayPlatform(localAddr, peerAddr, vni)
	if err != nil {
		return nil, err
	}
	fd := netfd.GetFdFromConn(op.conn)
	if fd < 0 {
		op.Close()
		return nil, fmt.Errorf("platform: could not extract raw fd from udp conn")
	}
	if rcvBuf > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, rcvBuf); err != nil {
			op.Close()
			return nil, fmt.Errorf("platform: SO_RCVBUF: %w", err)
		}
	}
	if sndBuf > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, sndBuf); err != nil {
			op.Close()
			return nil, fmt.Errorf("platform: SO_SNDBUF: %w", err)
		}
	}
	return &RawSocketPlatform{OverlayPlatform: op}, nil
}

// SocketBufferSizes reads back the kernel's actual SO_RCVBUF/SO_SNDBUF
// (which the kernel is free to round up from what was requested).
func (p *RawSocketPlatform) SocketBufferSizes() (rcv, snd int, err error) {
	fd := netfd.GetFdFromConn(p.conn)
	if fd < 0 {
		return 0, 0, fmt.Errorf("platform: could not extract raw fd from udp conn")
	}
	rcv, err = unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF)
	if err != nil {
		return 0, 0, err
	}
	snd, err = unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF)
	if err != nil {
		return 0, 0, err
	}
	return rcv, snd, nil
}
