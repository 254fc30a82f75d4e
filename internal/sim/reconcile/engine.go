// Package reconcile applies authoritative server state to the client's local
// entities. The locally-controlled player is never overwritten (movement
// prediction keeps self-authority); every other entity converges to the
// server's transforms. Outbound state is pushed at a fixed rate every tick.
package reconcile

import (
	"log"

	"voxelsync.gg/internal/netmap"
	"voxelsync.gg/internal/protocol"
	"voxelsync.gg/internal/sim/entity"
)

// Transport is the slice of the websocket client the engine drives.
type Transport interface {
	ClientID() protocol.ClientID
	Receive(protocol.Channel) ([]byte, bool)
	Send(protocol.Channel, []byte)
	IsConnected() bool
}

// Presenter is the rendering collaborator: it attaches presentation bundles
// (meshes, colliders, cameras) to spawned players. Nil is valid.
type Presenter interface {
	PlayerSpawned(local protocol.EntityID, client protocol.ClientID, self bool)
	PlayerDespawned(local protocol.EntityID, client protocol.ClientID)
}

// PlayerInfo is the pinned binding between a player's server entity and its
// client entity. Exactly one exists per connected player.
type PlayerInfo struct {
	ServerEntity protocol.EntityID
	ClientEntity protocol.EntityID
}

// Stats is auxiliary per-player gameplay state.
type Stats struct {
	Score int
}

// Metrics counts reconciliation work for tests and debug overlays.
type Metrics struct {
	SnapshotWrites  int // transforms actually written
	SnapshotSkips   int // unchanged transforms skipped
	UnknownEntities int // snapshot ids with no local mapping
}

type Engine struct {
	tr   Transport
	log  *log.Logger
	pres Presenter

	registry *entity.Registry
	table    *netmap.Table
	lobby    map[protocol.ClientID]PlayerInfo

	selfEntity protocol.EntityID
	isHost     bool

	stats Stats

	// Chat is deliberately shallow: one pending outgoing message, one
	// "last received" display slot. No history.
	pendingChat  string
	lastChat     string
	lastChatFrom protocol.ClientID

	pendingCommands []protocol.PlayerCommand

	metrics Metrics
}

func NewEngine(tr Transport, logger *log.Logger, pres Presenter) *Engine {
	return &Engine{
		tr:       tr,
		log:      logger,
		pres:     pres,
		registry: entity.NewRegistry(),
		table:    netmap.New(),
		lobby:    map[protocol.ClientID]PlayerInfo{},
	}
}

func (e *Engine) SelfEntity() protocol.EntityID { return e.selfEntity }
func (e *Engine) IsHost() bool                  { return e.isHost }
func (e *Engine) Players() int                  { return len(e.lobby) }
func (e *Engine) Metrics() Metrics              { return e.metrics }
func (e *Engine) Stats() Stats                  { return e.stats }
func (e *Engine) AddScore(delta int)            { e.stats.Score += delta }

// Lookup translates a server entity id to the local one.
func (e *Engine) Lookup(server protocol.EntityID) (protocol.EntityID, bool) {
	return e.table.Lookup(server)
}

func (e *Engine) Transform(local protocol.EntityID) (entity.Transform, bool) {
	return e.registry.Transform(local)
}

// SetSelfTransform is the prediction hook: input/physics collaborators move
// the controlled player through this.
func (e *Engine) SetSelfTransform(t entity.Transform) {
	if !e.selfEntity.IsZero() {
		e.registry.SetTransform(e.selfEntity, t)
	}
}

// QueueCommand stages a discrete action for the next outbound flush.
func (e *Engine) QueueCommand(cmd protocol.PlayerCommand) {
	e.pendingCommands = append(e.pendingCommands, cmd)
}

// QueueChat stages an outgoing chat message. A second call before the next
// tick overwrites the first: the outgoing queue is one slot deep.
func (e *Engine) QueueChat(text string) { e.pendingChat = text }

// LastChat returns the most recently received chat line and its sender.
func (e *Engine) LastChat() (protocol.ClientID, string) {
	return e.lastChatFrom, e.lastChat
}

// Tick drains every inbound channel, then pushes the fixed-rate outbound
// state. Disconnected transports make it a no-op.
func (e *Engine) Tick() {
	if !e.tr.IsConnected() {
		return
	}
	e.drainServerMessages()
	e.drainHost()
	e.drainSnapshots(protocol.ChanNetworkedEntities)
	e.drainSnapshots(protocol.ChanNonNetworkedEntities)
	e.drainChat()

	e.sendTransforms()
	e.sendCommands()
	e.sendChat()
}

func (e *Engine) drainServerMessages() {
	for {
		b, ok := e.tr.Receive(protocol.ChanServerMessages)
		if !ok {
			return
		}
		m, err := protocol.Decode(b)
		if err != nil {
			// Fatal to this message only; the channel keeps draining.
			continue
		}
		switch msg := m.(type) {
		case protocol.PlayerCreate:
			e.applyPlayerCreate(msg)
		case protocol.PlayerRemove:
			e.applyPlayerRemove(msg)
		}
	}
}

func (e *Engine) applyPlayerCreate(msg protocol.PlayerCreate) {
	if _, exists := e.lobby[msg.ClientID]; exists {
		return
	}
	local := e.registry.Spawn(entity.KindPlayer, entity.Transform{
		Translation: msg.Translation,
		Rotation:    protocol.IdentityQuat(),
	})
	self := msg.ClientID == e.tr.ClientID()
	if self {
		e.registry.SetControlled(local, true)
		e.selfEntity = local
	}
	e.lobby[msg.ClientID] = PlayerInfo{ServerEntity: msg.Entity, ClientEntity: local}
	e.table.Insert(msg.Entity, local)
	if e.log != nil {
		e.log.Printf("player %d connected", msg.ClientID)
	}
	if e.pres != nil {
		e.pres.PlayerSpawned(local, msg.ClientID, self)
	}
}

func (e *Engine) applyPlayerRemove(msg protocol.PlayerRemove) {
	info, ok := e.lobby[msg.ClientID]
	if !ok {
		return
	}
	delete(e.lobby, msg.ClientID)
	e.registry.Despawn(info.ClientEntity)
	e.table.Remove(info.ServerEntity)
	if info.ClientEntity == e.selfEntity {
		e.selfEntity = protocol.EntityID{}
	}
	if e.log != nil {
		e.log.Printf("player %d disconnected", msg.ClientID)
	}
	if e.pres != nil {
		e.pres.PlayerDespawned(info.ClientEntity, msg.ClientID)
	}
}

func (e *Engine) drainHost() {
	for {
		b, ok := e.tr.Receive(protocol.ChanHost)
		if !ok {
			return
		}
		m, err := protocol.Decode(b)
		if err != nil {
			continue
		}
		if h, ok := m.(protocol.Host); ok {
			e.isHost = h.IsHost
		}
	}
}

func (e *Engine) drainSnapshots(ch protocol.Channel) {
	for {
		b, ok := e.tr.Receive(ch)
		if !ok {
			return
		}
		m, err := protocol.Decode(b)
		if err != nil {
			continue
		}
		switch snap := m.(type) {
		case protocol.NetworkedEntities:
			e.applySnapshot(snap.Entities, snap.Translations, snap.Rotations)
		case protocol.NonNetworkedEntities:
			e.applySnapshot(snap.Entities, snap.Translations, snap.Rotations)
		}
	}
}

// applySnapshot walks the index-aligned triples. Unknown server ids are
// skipped (mapping miss is a no-op, not a failure), the controlled entity
// is never touched, and unchanged translations are skipped to avoid
// redundant writes.
func (e *Engine) applySnapshot(ids []protocol.EntityID, ts []protocol.Vec3, rs []protocol.Quat) {
	if len(ids) != len(ts) || len(ids) != len(rs) {
		return
	}
	for i, sid := range ids {
		local, ok := e.table.Lookup(sid)
		if !ok {
			e.metrics.UnknownEntities++
			continue
		}
		if e.registry.Controlled(local) {
			continue
		}
		cur, ok := e.registry.Transform(local)
		if !ok {
			continue
		}
		if cur.Translation == ts[i] {
			e.metrics.SnapshotSkips++
			continue
		}
		e.registry.SetTransform(local, entity.Transform{Translation: ts[i], Rotation: rs[i]})
		e.metrics.SnapshotWrites++
	}
}

func (e *Engine) drainChat() {
	for {
		b, ok := e.tr.Receive(protocol.ChanChat)
		if !ok {
			return
		}
		m, err := protocol.Decode(b)
		if err != nil {
			continue
		}
		if chat, ok := m.(protocol.ChatMessage); ok {
			// Display slot, not history: the newest line wins.
			e.lastChatFrom = chat.ClientID
			e.lastChat = chat.Text
		}
	}
}

// sendTransforms pushes the local player's translation and look rotation
// every tick, independent of whether anything changed.
func (e *Engine) sendTransforms() {
	if e.selfEntity.IsZero() {
		return
	}
	t, ok := e.registry.Transform(e.selfEntity)
	if !ok {
		return
	}
	e.tr.Send(protocol.ChanInput, protocol.Encode(protocol.PlayerInput{Translation: t.Translation}))
	e.tr.Send(protocol.ChanRots, protocol.Encode(protocol.RotationInput{Rotation: t.Rotation}))
}

func (e *Engine) sendCommands() {
	for _, cmd := range e.pendingCommands {
		e.tr.Send(protocol.ChanCommand, protocol.Encode(cmd))
	}
	e.pendingCommands = e.pendingCommands[:0]
}

// sendChat flushes the one-slot outgoing message and clears it so it cannot
// be re-sent.
func (e *Engine) sendChat() {
	if e.pendingChat == "" {
		return
	}
	e.tr.Send(protocol.ChanChatSend, protocol.Encode(protocol.ChatMessage{
		ClientID: e.tr.ClientID(),
		Text:     e.pendingChat,
	}))
	e.pendingChat = ""
}
