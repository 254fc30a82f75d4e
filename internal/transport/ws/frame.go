// Package ws carries the protocol's logical channels over websocket
// connections. One websocket binary message is one frame: a channel byte
// followed by exactly one encoded protocol message. Per-channel FIFO order
// is preserved; nothing is ordered across channels.
package ws

import (
	"encoding/binary"
	"sync"

	"voxelsync.gg/internal/protocol"
)

const (
	// Handshake framing: the client's first message is its protocol id,
	// the server's reply is the assigned client id. Both fixed 8 bytes.
	handshakeLen = 8

	readBufferSize  = 64 * 1024
	writeBufferSize = 64 * 1024

	// unreliableBacklog bounds each unreliable channel's inbound queue.
	// When full, the oldest frame is shed: stale position updates are
	// worthless once a fresher one exists.
	unreliableBacklog = 64
)

func encodeHandshake(v uint64) []byte {
	b := make([]byte, handshakeLen)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeHandshake(b []byte) (uint64, bool) {
	if len(b) != handshakeLen {
		return 0, false
	}
	return binary.BigEndian.Uint64(b), true
}

func appendFrame(ch protocol.Channel, payload []byte) []byte {
	frame := make([]byte, 0, 1+len(payload))
	frame = append(frame, byte(ch))
	return append(frame, payload...)
}

// channelQueues is the per-connection inbound buffer, one FIFO per channel.
// Producers are the connection's reader goroutine; the consumer is the
// owning engine's tick, which drains non-blockingly.
type channelQueues struct {
	mu     sync.Mutex
	queues [][][]byte
}

var allChannels = protocol.Channels()

func newChannelQueues() *channelQueues {
	return &channelQueues{queues: make([][][]byte, len(allChannels))}
}

func (q *channelQueues) push(ch protocol.Channel, payload []byte) {
	if !ch.Valid() {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	queue := q.queues[ch]
	if !ch.Reliable() && len(queue) >= unreliableBacklog {
		queue = queue[1:]
	}
	q.queues[ch] = append(queue, payload)
}

// pop returns the next frame payload on ch, or (nil, false) immediately if
// the queue is empty. It never blocks the tick.
func (q *channelQueues) pop(ch protocol.Channel) ([]byte, bool) {
	if !ch.Valid() {
		return nil, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	queue := q.queues[ch]
	if len(queue) == 0 {
		return nil, false
	}
	payload := queue[0]
	q.queues[ch] = queue[1:]
	return payload, true
}
