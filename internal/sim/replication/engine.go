// Package replication owns the authoritative player/entity state. It drains
// client input channels, mutates authoritative transforms, and pushes one
// snapshot per tick to every client. All state here is mutated only on the
// engine's tick; the transport goroutines never reach in.
package replication

import (
	"log"
	"math/rand"

	"voxelsync.gg/internal/protocol"
	"voxelsync.gg/internal/sim/entity"
	"voxelsync.gg/internal/transport/ws"
)

// Transport is the slice of the websocket server the engine drives.
type Transport interface {
	TakeEvents() []ws.Event
	Receive(protocol.ClientID, protocol.Channel) ([]byte, bool)
	Send(protocol.ClientID, protocol.Channel, []byte)
	Broadcast(protocol.Channel, []byte)
}

// Observer receives lifecycle/chat notifications for persistence. All
// methods are optional; a nil Observer is valid.
type Observer interface {
	PlayerConnected(id protocol.ClientID, spawn protocol.Vec3)
	PlayerDisconnected(id protocol.ClientID, score int)
	ChatReceived(id protocol.ClientID, text string)
}

// Limits throttles per-client chat and command traffic. Zero values mean
// unlimited.
type Limits struct {
	ChatWindowTicks    int
	ChatMax            int
	CommandWindowTicks int
	CommandMax         int
}

type playerSlot struct {
	entity protocol.EntityID
	score  int
	host   bool

	chatUsed int
	cmdUsed  int
}

type Engine struct {
	tr  Transport
	log *log.Logger
	obs Observer

	registry *entity.Registry
	lobby    map[protocol.ClientID]*playerSlot

	// joinOrder drives host migration: oldest surviving client hosts.
	joinOrder []protocol.ClientID

	limits Limits
	tick   uint64

	rng *rand.Rand
}

func NewEngine(tr Transport, seed int64, logger *log.Logger, obs Observer) *Engine {
	return &Engine{
		tr:       tr,
		log:      logger,
		obs:      obs,
		registry: entity.NewRegistry(),
		lobby:    map[protocol.ClientID]*playerSlot{},
		rng:      rand.New(rand.NewSource(seed)),
	}
}

func (e *Engine) Players() int { return len(e.lobby) }

// Entity returns the authoritative entity bound to a client.
func (e *Engine) Entity(id protocol.ClientID) (protocol.EntityID, bool) {
	if s, ok := e.lobby[id]; ok {
		return s.entity, true
	}
	return protocol.EntityID{}, false
}

// Transform exposes an authoritative transform (gameplay collaborators,
// e.g. physics, read and write through this).
func (e *Engine) Transform(id protocol.EntityID) (entity.Transform, bool) {
	return e.registry.Transform(id)
}

func (e *Engine) SetTransform(id protocol.EntityID, t entity.Transform) bool {
	return e.registry.SetTransform(id, t)
}

// SpawnWorldEntity registers a server-owned, non-player entity. Its
// transform travels on the NonNetworkedEntities channel.
func (e *Engine) SpawnWorldEntity(t entity.Transform) protocol.EntityID {
	return e.registry.Spawn(entity.KindWorld, t)
}

func (e *Engine) DespawnWorldEntity(id protocol.EntityID) bool {
	if e.registry.Kind(id) != entity.KindWorld {
		return false
	}
	return e.registry.Despawn(id)
}

// SetLimits installs chat/command throttles. Call before the first Tick.
func (e *Engine) SetLimits(l Limits) { e.limits = l }

func (e *Engine) resetLimitWindows() {
	for _, slot := range e.lobby {
		if w := e.limits.ChatWindowTicks; w > 0 && e.tick%uint64(w) == 0 {
			slot.chatUsed = 0
		}
		if w := e.limits.CommandWindowTicks; w > 0 && e.tick%uint64(w) == 0 {
			slot.cmdUsed = 0
		}
	}
}

// AddScore bumps a player's score (gameplay hook).
func (e *Engine) AddScore(id protocol.ClientID, delta int) {
	if s, ok := e.lobby[id]; ok {
		s.score += delta
	}
}

// Tick runs one authoritative step: lifecycle events, input drains,
// snapshot broadcast. Fixed-rate push: the snapshot goes out every tick
// whether or not anything changed.
func (e *Engine) Tick() {
	e.tick++
	e.resetLimitWindows()

	for _, ev := range e.tr.TakeEvents() {
		switch ev.Kind {
		case ws.ClientConnected:
			e.handleConnect(ev.ClientID)
		case ws.ClientDisconnected:
			e.handleDisconnect(ev.ClientID)
		}
	}

	// Deterministic drain order: join order, not map order.
	for _, id := range e.joinOrder {
		slot := e.lobby[id]
		e.applyInputs(id, slot)
		e.applyCommands(id, slot)
		e.applyChat(id, slot)
	}

	e.broadcastPlayers()
	e.broadcastWorldEntities()
}

func (e *Engine) handleConnect(id protocol.ClientID) {
	// Initialize the new client with every existing player first.
	for _, otherID := range e.joinOrder {
		slot := e.lobby[otherID]
		t, _ := e.registry.Transform(slot.entity)
		e.tr.Send(id, protocol.ChanServerMessages, protocol.Encode(protocol.PlayerCreate{
			ClientID:    otherID,
			Entity:      slot.entity,
			Translation: t.Translation,
		}))
	}

	spawn := protocol.Vec3{
		X: (e.rng.Float32() - 0.5) * 40,
		Y: 171,
		Z: (e.rng.Float32() - 0.5) * 40,
	}
	ent := e.registry.Spawn(entity.KindPlayer, entity.Transform{
		Translation: spawn,
		Rotation:    protocol.IdentityQuat(),
	})
	slot := &playerSlot{entity: ent}
	e.lobby[id] = slot
	e.joinOrder = append(e.joinOrder, id)

	e.tr.Broadcast(protocol.ChanServerMessages, protocol.Encode(protocol.PlayerCreate{
		ClientID:    id,
		Entity:      ent,
		Translation: spawn,
	}))

	slot.host = !e.hasHost()
	e.tr.Send(id, protocol.ChanHost, protocol.Encode(protocol.Host{IsHost: slot.host}))

	if e.log != nil {
		e.log.Printf("player %d connected, entity %s host=%v", id, ent, slot.host)
	}
	if e.obs != nil {
		e.obs.PlayerConnected(id, spawn)
	}
}

func (e *Engine) handleDisconnect(id protocol.ClientID) {
	slot, ok := e.lobby[id]
	if !ok {
		return
	}
	delete(e.lobby, id)
	e.registry.Despawn(slot.entity)
	for i, jid := range e.joinOrder {
		if jid == id {
			e.joinOrder = append(e.joinOrder[:i], e.joinOrder[i+1:]...)
			break
		}
	}

	e.tr.Broadcast(protocol.ChanServerMessages, protocol.Encode(protocol.PlayerRemove{ClientID: id}))

	if slot.host {
		e.migrateHost()
	}
	if e.log != nil {
		e.log.Printf("player %d disconnected, score %d", id, slot.score)
	}
	if e.obs != nil {
		e.obs.PlayerDisconnected(id, slot.score)
	}
}

func (e *Engine) hasHost() bool {
	for _, s := range e.lobby {
		if s.host {
			return true
		}
	}
	return false
}

func (e *Engine) migrateHost() {
	if len(e.joinOrder) == 0 {
		return
	}
	next := e.joinOrder[0]
	if s, ok := e.lobby[next]; ok {
		s.host = true
		e.tr.Send(next, protocol.ChanHost, protocol.Encode(protocol.Host{IsHost: true}))
		if e.log != nil {
			e.log.Printf("host migrated to player %d", next)
		}
	}
}

// applyInputs drains a client's Input and Rots channels most-recent-wins:
// only the last successfully decoded message of each kind this tick is
// applied; earlier ones are discarded, not queued. Malformed payloads are
// dropped without touching the connection.
func (e *Engine) applyInputs(id protocol.ClientID, slot *playerSlot) {
	var lastInput *protocol.PlayerInput
	for {
		b, ok := e.tr.Receive(id, protocol.ChanInput)
		if !ok {
			break
		}
		m, err := protocol.Decode(b)
		if err != nil {
			continue
		}
		if in, ok := m.(protocol.PlayerInput); ok {
			lastInput = &in
		}
	}
	if lastInput != nil {
		e.registry.SetTranslation(slot.entity, lastInput.Translation)
	}

	var lastRot *protocol.RotationInput
	for {
		b, ok := e.tr.Receive(id, protocol.ChanRots)
		if !ok {
			break
		}
		m, err := protocol.Decode(b)
		if err != nil {
			continue
		}
		if r, ok := m.(protocol.RotationInput); ok {
			lastRot = &r
		}
	}
	if lastRot != nil {
		e.registry.SetRotation(slot.entity, lastRot.Rotation)
	}
}

// applyCommands drains discrete actions in order; commands accumulate,
// they are not most-recent-wins.
func (e *Engine) applyCommands(id protocol.ClientID, slot *playerSlot) {
	for {
		b, ok := e.tr.Receive(id, protocol.ChanCommand)
		if !ok {
			break
		}
		m, err := protocol.Decode(b)
		if err != nil {
			continue
		}
		cmd, ok := m.(protocol.PlayerCommand)
		if !ok {
			continue
		}
		if e.limits.CommandMax > 0 && slot.cmdUsed >= e.limits.CommandMax {
			continue
		}
		slot.cmdUsed++
		switch cmd.Kind {
		case protocol.CommandAttack:
			slot.score++
		case protocol.CommandInteract:
			// No server-side effect yet; gameplay collaborators hook in
			// through AddScore/SetTransform.
		}
	}
}

func (e *Engine) applyChat(id protocol.ClientID, slot *playerSlot) {
	for {
		b, ok := e.tr.Receive(id, protocol.ChanChatSend)
		if !ok {
			break
		}
		m, err := protocol.Decode(b)
		if err != nil {
			continue
		}
		chat, ok := m.(protocol.ChatMessage)
		if !ok {
			continue
		}
		if e.limits.ChatMax > 0 && slot.chatUsed >= e.limits.ChatMax {
			// Over the window budget: drop silently, like flood control.
			continue
		}
		slot.chatUsed++
		// Sender identity comes from the session, not the payload.
		chat.ClientID = id
		e.tr.Broadcast(protocol.ChanChat, protocol.Encode(chat))
		if e.obs != nil {
			e.obs.ChatReceived(id, chat.Text)
		}
	}
}

func (e *Engine) broadcastPlayers() {
	var snap protocol.NetworkedEntities
	e.registry.Each(func(id protocol.EntityID, kind entity.Kind, t entity.Transform) {
		if kind != entity.KindPlayer {
			return
		}
		snap.Entities = append(snap.Entities, id)
		snap.Translations = append(snap.Translations, t.Translation)
		snap.Rotations = append(snap.Rotations, t.Rotation)
	})
	e.tr.Broadcast(protocol.ChanNetworkedEntities, protocol.Encode(snap))
}

func (e *Engine) broadcastWorldEntities() {
	var snap protocol.NonNetworkedEntities
	e.registry.Each(func(id protocol.EntityID, kind entity.Kind, t entity.Transform) {
		if kind != entity.KindWorld {
			return
		}
		snap.Entities = append(snap.Entities, id)
		snap.Translations = append(snap.Translations, t.Translation)
		snap.Rotations = append(snap.Rotations, t.Rotation)
	})
	if len(snap.Entities) == 0 {
		return
	}
	e.tr.Broadcast(protocol.ChanNonNetworkedEntities, protocol.Encode(snap))
}
