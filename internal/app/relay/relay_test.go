package relay

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/dkeye/lanhub/internal/app"
	"github.com/dkeye/lanhub/internal/core"
	"github.com/dkeye/lanhub/internal/domain"
	"github.com/dkeye/lanhub/internal/protocol"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error                { return nil }
func (nopConn) Send(context.Context, core.Frame) error { return nil }
func (nopConn) Close()                                  {}

func register(t *testing.T, reg *app.Registry, name string) core.SessionID {
	t.Helper()
	u, err := domain.NewUser(name, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return reg.Register(u, nopConn{}, nil, nil)
}

func client(t *testing.T) net.PacketConn {
	t.Helper()
	c, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func send(t *testing.T, c net.PacketConn, to net.Addr, data []byte) {
	t.Helper()
	if _, err := c.WriteTo(data, to); err != nil {
		t.Fatal(err)
	}
}

// recv returns the next datagram, or nil if none arrives within wait.
func recv(t *testing.T, c net.PacketConn, wait time.Duration) []byte {
	t.Helper()
	buf := make([]byte, 65536)
	_ = c.SetReadDeadline(time.Now().Add(wait))
	n, _, err := c.ReadFrom(buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil
		}
		t.Fatal(err)
	}
	return buf[:n]
}

// waitEndpoints blocks until the relay has learned n video endpoints.
func waitEndpoints(t *testing.T, reg *app.Registry, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(reg.Endpoints(core.StreamVideo, "")) < n {
		if time.Now().After(deadline) {
			t.Fatalf("relay learned %d endpoints, want %d", len(reg.Endpoints(core.StreamVideo, "")), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startRelay(t *testing.T, reg *app.Registry) *Relay {
	t.Helper()
	r, err := Listen(core.StreamVideo, "127.0.0.1:0", reg, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = r.Close()
		<-done
	})
	return r
}

func TestRelayFansOutExcludingSender(t *testing.T) {
	reg := app.NewRegistry()
	alice := register(t, reg, "alice")
	bob := register(t, reg, "bob")
	carol := register(t, reg, "carol")
	r := startRelay(t, reg)

	ac, bc, cc := client(t), client(t), client(t)

	// Bob announces himself while nobody else is known, then Carol does.
	send(t, bc, r.Addr(), protocol.EncodeDatagram(string(bob), []byte("hello-b")))
	waitEndpoints(t, reg, 1)
	send(t, cc, r.Addr(), protocol.EncodeDatagram(string(carol), []byte("hello-c")))
	if got := recv(t, bc, time.Second); got == nil {
		t.Fatal("bob did not receive carol's datagram")
	}

	frame := protocol.EncodeDatagram(string(alice), []byte{1, 2, 3, 4, 5})
	send(t, ac, r.Addr(), frame)

	for name, c := range map[string]net.PacketConn{"bob": bc, "carol": cc} {
		got := recv(t, c, time.Second)
		if !bytes.Equal(got, frame) {
			t.Errorf("%s got %x, want %x", name, got, frame)
		}
	}
	if got := recv(t, ac, 200*time.Millisecond); got != nil {
		t.Errorf("sender received its own datagram: %x", got)
	}
}

func TestRelayDropsUnknownAndMalformed(t *testing.T) {
	reg := app.NewRegistry()
	bob := register(t, reg, "bob")
	r := startRelay(t, reg)

	bc, xc := client(t), client(t)
	send(t, bc, r.Addr(), protocol.EncodeDatagram(string(bob), nil))
	waitEndpoints(t, reg, 1)

	send(t, xc, r.Addr(), protocol.EncodeDatagram("not-a-session", []byte("x")))
	send(t, xc, r.Addr(), []byte{0xff, 0xff})
	if got := recv(t, bc, 300*time.Millisecond); got != nil {
		t.Errorf("bob received dropped datagram: %x", got)
	}
	if eps := reg.Endpoints(core.StreamVideo, ""); len(eps) != 1 {
		t.Errorf("endpoints = %+v, want only bob", eps)
	}
}

func TestRelayEndpointFollowsSource(t *testing.T) {
	reg := app.NewRegistry()
	alice := register(t, reg, "alice")
	bob := register(t, reg, "bob")
	r := startRelay(t, reg)

	ac, oldB, newB := client(t), client(t), client(t)
	send(t, oldB, r.Addr(), protocol.EncodeDatagram(string(bob), nil))
	waitEndpoints(t, reg, 1)
	send(t, ac, r.Addr(), protocol.EncodeDatagram(string(alice), nil))
	recv(t, oldB, time.Second)

	send(t, newB, r.Addr(), protocol.EncodeDatagram(string(bob), nil))
	recv(t, ac, time.Second)

	frame := protocol.EncodeDatagram(string(alice), []byte("moved"))
	send(t, ac, r.Addr(), frame)
	if got := recv(t, newB, time.Second); !bytes.Equal(got, frame) {
		t.Errorf("new endpoint got %x", got)
	}
	if got := recv(t, oldB, 200*time.Millisecond); got != nil {
		t.Errorf("old endpoint still receives: %x", got)
	}
}

func TestManagerRunStopsOnCancel(t *testing.T) {
	reg := app.NewRegistry()
	mgr, err := ListenAll("127.0.0.1:0", "127.0.0.1:0", reg, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if mgr.Relay(core.StreamAudio) == nil || mgr.Relay(core.StreamVideo) == nil {
		t.Fatal("missing relay")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
