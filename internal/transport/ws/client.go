package ws

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"voxelsync.gg/internal/protocol"
)

// Client is the dialing end of the link. Dial performs the protocol id
// handshake; a refusal (mismatch, server full) surfaces as a dial error.
type Client struct {
	id   protocol.ClientID
	peer *peer
}

func Dial(url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(handshakeDeadline))
	if err := conn.WriteMessage(websocket.BinaryMessage, encodeHandshake(protocol.ProtocolID)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("handshake send: %w", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(handshakeDeadline))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("handshake recv: %w", err)
	}
	id, ok := decodeHandshake(msg)
	if !ok || id == 0 {
		_ = conn.Close()
		return nil, fmt.Errorf("handshake recv: bad client id frame")
	}

	c := &Client{id: protocol.ClientID(id), peer: newPeer(conn)}
	go c.peer.writeLoop()
	go c.peer.readLoop(nil)
	return c, nil
}

// ClientID is the server-assigned connection identity.
func (c *Client) ClientID() protocol.ClientID { return c.id }

func (c *Client) Send(ch protocol.Channel, payload []byte) {
	c.peer.send(ch, payload)
}

// Receive pops the next frame on ch, never blocking.
func (c *Client) Receive(ch protocol.Channel) ([]byte, bool) {
	return c.peer.receive(ch)
}

func (c *Client) IsConnected() bool { return !c.peer.isClosed() }

func (c *Client) Close() { c.peer.shutdown() }
