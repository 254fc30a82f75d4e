package ws

import (
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voxelsync.gg/internal/protocol"
)

// EventKind is a connection lifecycle transition, surfaced to the
// replication engine as an explicit event rather than a callback.
type EventKind uint8

const (
	ClientConnected EventKind = iota + 1
	ClientDisconnected
)

type Event struct {
	Kind     EventKind
	ClientID protocol.ClientID
}

// Authorizer lets a hardened deployment gate connections. The reference
// deployment is unsecure: a nil Authorizer admits everyone.
type Authorizer func(r *http.Request) bool

type ServerConfig struct {
	MaxClients int
	Authorizer Authorizer
}

func (c *ServerConfig) applyDefaults() {
	if c.MaxClients <= 0 {
		c.MaxClients = 64
	}
}

// Server accepts client connections and exposes non-blocking per-client
// channel receive/send to the owning tick loop.
type Server struct {
	cfg ServerConfig
	log *log.Logger

	upgrader websocket.Upgrader

	mu     sync.Mutex
	peers  map[protocol.ClientID]*peer
	events []Event
	nextID protocol.ClientID
}

func NewServer(cfg ServerConfig, logger *log.Logger) *Server {
	cfg.applyDefaults()
	return &Server{
		cfg: cfg,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		peers: map[protocol.ClientID]*peer{},
	}
}

// Handler upgrades and runs one client connection.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if s.cfg.Authorizer != nil && !s.cfg.Authorizer(r) {
			http.Error(rw, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}

		id, p, err := s.handshake(conn)
		if err != nil {
			_ = conn.Close()
			return
		}

		go p.writeLoop()
		p.readLoop(func() { s.drop(id) })
	}
}

// handshake validates the protocol id and capacity, then assigns the
// client id. Mismatched protocol ids refuse the connection outright.
func (s *Server) handshake(conn *websocket.Conn) (protocol.ClientID, *peer, error) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeDeadline))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return 0, nil, err
	}
	got, ok := decodeHandshake(msg)
	if !ok || got != protocol.ProtocolID {
		refuse(conn, "protocol id mismatch")
		return 0, nil, protocol.ErrProtocolMismatch
	}

	s.mu.Lock()
	if len(s.peers) >= s.cfg.MaxClients {
		s.mu.Unlock()
		refuse(conn, "server full")
		return 0, nil, protocol.ErrServerFull
	}
	s.nextID++
	id := s.nextID
	p := newPeer(conn)
	s.peers[id] = p
	s.events = append(s.events, Event{Kind: ClientConnected, ClientID: id})
	s.mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := conn.WriteMessage(websocket.BinaryMessage, encodeHandshake(uint64(id))); err != nil {
		s.drop(id)
		return 0, nil, err
	}
	if s.log != nil {
		s.log.Printf("client %d connected", id)
	}
	return id, p, nil
}

func refuse(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func (s *Server) drop(id protocol.ClientID) {
	s.mu.Lock()
	p, ok := s.peers[id]
	if ok {
		delete(s.peers, id)
		s.events = append(s.events, Event{Kind: ClientDisconnected, ClientID: id})
	}
	s.mu.Unlock()
	if ok {
		p.shutdown()
		if s.log != nil {
			s.log.Printf("client %d disconnected", id)
		}
	}
}

// TakeEvents drains pending lifecycle events in arrival order.
func (s *Server) TakeEvents() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := s.events
	s.events = nil
	return ev
}

// Clients lists connected client ids, ascending.
func (s *Server) Clients() []protocol.ClientID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.ClientID, 0, len(s.peers))
	for id := range s.peers {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Receive pops the next frame on a client's channel, never blocking.
// A gone client simply yields nothing: its queued input is discarded.
func (s *Server) Receive(id protocol.ClientID, ch protocol.Channel) ([]byte, bool) {
	s.mu.Lock()
	p, ok := s.peers[id]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	return p.receive(ch)
}

func (s *Server) Send(id protocol.ClientID, ch protocol.Channel, payload []byte) {
	s.mu.Lock()
	p, ok := s.peers[id]
	s.mu.Unlock()
	if ok {
		p.send(ch, payload)
	}
}

func (s *Server) Broadcast(ch protocol.Channel, payload []byte) {
	s.mu.Lock()
	peers := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()
	for _, p := range peers {
		p.send(ch, payload)
	}
}

// Disconnect force-closes one client (admin/kick path).
func (s *Server) Disconnect(id protocol.ClientID) { s.drop(id) }

// Close tears down every connection.
func (s *Server) Close() {
	s.mu.Lock()
	peers := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()
	for _, p := range peers {
		p.shutdown()
	}
}
