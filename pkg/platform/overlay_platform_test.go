package platform

import (
	"net"
	"testing"
)

func TestOverlayPlatformUDPRoundTrip(t *testing.T) {
	b, err := NewOverlayPlatform("127.0.0.1:0", "127.0.0.1:0", 42)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	a, err := NewOverlayPlatform("127.0.0.1:0", b.LocalAddr().String(), 42)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	// b only learns a's ephemeral port once it sees a datagram; point it
	// back explicitly so the reply leg of this test has somewhere to go.
	b.peer = a.LocalAddr().(*net.UDPAddr)

	msg := []byte("overlay round trip")
	if err := a.Send(msg); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 1500)
	n, err := recvRetry(b, buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != string(msg) {
		t.Fatalf("got %q, want %q", buf[:n], msg)
	}

	reply := []byte("ack")
	if err := b.Send(reply); err != nil {
		t.Fatal(err)
	}
	n, err = recvRetry(a, buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != string(reply) {
		t.Fatalf("got %q, want %q", buf[:n], reply)
	}
}

func recvRetry(p *OverlayPlatform, buf []byte) (int, error) {
	for i := 0; i < 50; i++ {
		n, err := p.Recv(buf)
		if err == ErrEmpty {
			continue
		}
		return n, err
	}
	return 0, ErrEmpty
}
