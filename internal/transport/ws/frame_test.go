package ws

import (
	"fmt"
	"testing"

	"voxelsync.gg/internal/protocol"
)

func TestChannelQueues_FIFOPerChannel(t *testing.T) {
	q := newChannelQueues()
	q.push(protocol.ChanCommand, []byte("a"))
	q.push(protocol.ChanCommand, []byte("b"))
	q.push(protocol.ChanChat, []byte("x"))

	if b, ok := q.pop(protocol.ChanCommand); !ok || string(b) != "a" {
		t.Fatalf("first pop: %q ok=%v", b, ok)
	}
	if b, ok := q.pop(protocol.ChanCommand); !ok || string(b) != "b" {
		t.Fatalf("second pop: %q ok=%v", b, ok)
	}
	if _, ok := q.pop(protocol.ChanCommand); ok {
		t.Fatalf("empty queue must return immediately with nothing")
	}
	// The other channel was untouched.
	if b, ok := q.pop(protocol.ChanChat); !ok || string(b) != "x" {
		t.Fatalf("chat pop: %q ok=%v", b, ok)
	}
}

func TestChannelQueues_UnreliableShedsOldest(t *testing.T) {
	q := newChannelQueues()
	for i := 0; i < unreliableBacklog+10; i++ {
		q.push(protocol.ChanInput, []byte(fmt.Sprintf("%d", i)))
	}
	first, ok := q.pop(protocol.ChanInput)
	if !ok {
		t.Fatalf("expected a frame")
	}
	if string(first) != "10" {
		t.Fatalf("oldest surviving frame %q, want 10", first)
	}
	n := 1
	for {
		if _, ok := q.pop(protocol.ChanInput); !ok {
			break
		}
		n++
	}
	if n != unreliableBacklog {
		t.Fatalf("kept %d frames, want %d", n, unreliableBacklog)
	}
}

func TestChannelQueues_ReliableNeverSheds(t *testing.T) {
	q := newChannelQueues()
	total := unreliableBacklog * 4
	for i := 0; i < total; i++ {
		q.push(protocol.ChanCommand, []byte{byte(i)})
	}
	n := 0
	for {
		if _, ok := q.pop(protocol.ChanCommand); !ok {
			break
		}
		n++
	}
	if n != total {
		t.Fatalf("reliable channel kept %d of %d", n, total)
	}
}

func TestChannelQueues_UnknownChannelIgnored(t *testing.T) {
	q := newChannelQueues()
	q.push(protocol.Channel(200), []byte("junk"))
	if _, ok := q.pop(protocol.Channel(200)); ok {
		t.Fatalf("unknown channel must hold nothing")
	}
}

func TestHandshakeFraming(t *testing.T) {
	v, ok := decodeHandshake(encodeHandshake(protocol.ProtocolID))
	if !ok || v != protocol.ProtocolID {
		t.Fatalf("round trip: %d ok=%v", v, ok)
	}
	if _, ok := decodeHandshake([]byte{1, 2, 3}); ok {
		t.Fatalf("short handshake frame must be rejected")
	}
}
