package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voxelsync.gg/internal/protocol"
)

const (
	writeDeadline     = 5 * time.Second
	readDeadline      = 60 * time.Second
	handshakeDeadline = 5 * time.Second
)

type outFrame struct {
	ch    protocol.Channel
	frame []byte
}

// peer is one live websocket connection, used on both ends of the link.
// Inbound frames land in per-channel queues; outbound frames go through an
// unbounded outbox serviced by a writer goroutine. Unreliable outbound
// frames are latest-wins: a newer frame on the same channel replaces the
// pending one instead of queueing behind it.
type peer struct {
	conn *websocket.Conn
	in   *channelQueues

	mu     sync.Mutex
	outbox []outFrame
	kick   chan struct{}
	closed bool

	done chan struct{}
}

func newPeer(conn *websocket.Conn) *peer {
	return &peer{
		conn: conn,
		in:   newChannelQueues(),
		kick: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (p *peer) send(ch protocol.Channel, payload []byte) {
	frame := appendFrame(ch, payload)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if !ch.Reliable() {
		for i := range p.outbox {
			if p.outbox[i].ch == ch {
				p.outbox[i].frame = frame
				p.mu.Unlock()
				p.wake()
				return
			}
		}
	}
	p.outbox = append(p.outbox, outFrame{ch: ch, frame: frame})
	p.mu.Unlock()
	p.wake()
}

func (p *peer) wake() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *peer) receive(ch protocol.Channel) ([]byte, bool) {
	return p.in.pop(ch)
}

// writeLoop owns the connection's write side.
func (p *peer) writeLoop() {
	for {
		select {
		case <-p.done:
			return
		case <-p.kick:
		}
		for {
			p.mu.Lock()
			if len(p.outbox) == 0 {
				p.mu.Unlock()
				break
			}
			batch := p.outbox
			p.outbox = nil
			p.mu.Unlock()

			for _, f := range batch {
				_ = p.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := p.conn.WriteMessage(websocket.BinaryMessage, f.frame); err != nil {
					p.shutdown()
					return
				}
			}
		}
	}
}

// readLoop owns the connection's read side, feeding the channel queues.
// Frames with an unknown channel byte are dropped, not fatal.
func (p *peer) readLoop(onClose func()) {
	for {
		_ = p.conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, msg, err := p.conn.ReadMessage()
		if err != nil {
			break
		}
		if len(msg) < 1 {
			continue
		}
		ch := protocol.Channel(msg[0])
		if !ch.Valid() {
			continue
		}
		p.in.push(ch, msg[1:])
	}
	p.shutdown()
	if onClose != nil {
		onClose()
	}
}

func (p *peer) shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	close(p.done)
	_ = p.conn.Close()
}

func (p *peer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
