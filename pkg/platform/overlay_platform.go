package platform

import (
	"fmt"
	"net"

	"github.com/cortexmesh/corenet/pkg/overlay"
)

// OverlayPlatform sends and receives frames as UDP datagrams on the
// overlay port, prepending/stripping the 8-byte overlay header.
type OverlayPlatform struct {
	conn *net.UDPConn
	peer *net.UDPAddr
	vni  uint32
}

// NewOverlayPlatform binds a UDP socket on localAddr (use ":0" for an
// ephemeral port, or ":6477" for the well-known overlay port) and targets
// peerAddr for outbound datagrams.
func NewOverlayPlatform(localAddr, peerAddr string, vni uint32) (*OverlayPlatform, error) {
	laddr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("platform: resolve local addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("platform: listen: %w", err)
	}
	raddr, err := net.ResolveUDPAddr("udp", peerAddr)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("platform: resolve peer addr: %w", err)
	}
	return &OverlayPlatform{conn: conn, peer: raddr, vni: vni}, nil
}

func (p *OverlayPlatform) Send(frameBytes []byte) error {
	buf := make([]byte, overlay.HeaderSize+len(frameBytes))
	if _, err := overlay.Encapsulate(buf, overlay.Header{VNI: p.vni}, frameBytes); err != nil {
		return fmt.Errorf("platform: encapsulate: %w", err)
	}
	_, err := p.conn.WriteToUDP(buf, p.peer)
	return err
}

func (p *OverlayPlatform) Recv(buf []byte) (int, error) {
	datagram := make([]byte, overlay.HeaderSize+len(buf))
	if err := p.conn.SetReadDeadline(deadlineNonBlocking()); err != nil {
		return 0, err
	}
	n, _, err := p.conn.ReadFromUDP(datagram)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, ErrEmpty
		}
		return 0, err
	}
	_, inner, err := overlay.Decapsulate(datagram[:n])
	if err != nil {
		return 0, fmt.Errorf("platform: decapsulate: %w", err)
	}
	return copy(buf, inner), nil
}

func (p *OverlayPlatform) Close() error {
	return p.conn.Close()
}

// LocalAddr returns the bound local address, useful for tests that bind an
// ephemeral port.
func (p *OverlayPlatform) LocalAddr() net.Addr { return p.conn.LocalAddr() }
