package transport

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"
)

// roundTrip dials the listener, writes a message in each direction, and
// verifies both arrive intact.
func roundTrip(t *testing.T, tr Transport, addr string) {
	t.Helper()

	ln, err := tr.Listen(addr, ListenOptions{})
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	type acceptResult struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan acceptResult, 1)
	go func() {
		conn, err := ln.Accept(ctx)
		accepted <- acceptResult{conn, err}
	}()

	dialed, err := tr.Dial(ctx, ln.Addr().String(), DefaultDialOptions())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer dialed.Close()

	// dialer -> listener. Written before waiting on Accept: QUIC streams
	// only materialize on the accepting side once data flows.
	msg := []byte("transport round trip")
	if _, err := dialed.Write(msg); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	res := <-accepted
	if res.err != nil {
		t.Fatalf("Accept() error = %v", res.err)
	}
	defer res.conn.Close()

	buf := make([]byte, len(msg))
	if err := readFull(res.conn, buf); err != nil {
		t.Fatalf("read on accepted conn: %v", err)
	}
	if !bytes.Equal(buf, msg) {
		t.Errorf("listener read %q, want %q", buf, msg)
	}

	// listener -> dialer
	reply := []byte("reply")
	if _, err := res.conn.Write(reply); err != nil {
		t.Fatalf("Write() reply error = %v", err)
	}
	buf = make([]byte, len(reply))
	if err := readFull(dialed, buf); err != nil {
		t.Fatalf("read on dialed conn: %v", err)
	}
	if !bytes.Equal(buf, reply) {
		t.Errorf("dialer read %q, want %q", buf, reply)
	}
}

func readFull(conn net.Conn, buf []byte) error {
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		if err != nil {
			return err
		}
		total += n
	}
	return nil
}

func TestTCPRoundTrip(t *testing.T) {
	tr := NewTCPTransport()
	defer tr.Close()
	roundTrip(t, tr, "127.0.0.1:0")
}

func TestWebSocketRoundTrip(t *testing.T) {
	tr := NewWebSocketTransport()
	defer tr.Close()
	roundTrip(t, tr, "127.0.0.1:0")
}

func TestQUICRoundTrip(t *testing.T) {
	tr := NewQUICTransport()
	defer tr.Close()
	roundTrip(t, tr, "127.0.0.1:0")
}

func TestNewFactory(t *testing.T) {
	for _, typ := range []Type{TypeTCP, TypeWebSocket, TypeQUIC} {
		tr, err := New(typ)
		if err != nil {
			t.Errorf("New(%q) error = %v", typ, err)
			continue
		}
		if tr.Type() != typ {
			t.Errorf("New(%q).Type() = %q", typ, tr.Type())
		}
		tr.Close()
	}

	if _, err := New("carrier-pigeon"); err == nil {
		t.Error("New with unknown type should fail")
	}
}

func TestTCPDialClosedTransport(t *testing.T) {
	tr := NewTCPTransport()
	tr.Close()

	if _, err := tr.Dial(context.Background(), "127.0.0.1:1", DefaultDialOptions()); err == nil {
		t.Error("Dial on closed transport should fail")
	}
}

func TestAcceptContextCancelled(t *testing.T) {
	tr := NewWebSocketTransport()
	defer tr.Close()

	ln, err := tr.Listen("127.0.0.1:0", ListenOptions{})
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ln.Accept(ctx); err == nil {
		t.Error("Accept with cancelled context should fail")
	}
}
