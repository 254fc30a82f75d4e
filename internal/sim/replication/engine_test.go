package replication

import (
	"testing"

	"voxelsync.gg/internal/protocol"
	"voxelsync.gg/internal/sim/entity"
	"voxelsync.gg/internal/transport/ws"
)

func entityTransform(v protocol.Vec3) entity.Transform {
	return entity.Transform{Translation: v, Rotation: protocol.IdentityQuat()}
}

// fakeTransport drives the engine without sockets.
type fakeTransport struct {
	events     []ws.Event
	inbound    map[protocol.ClientID]map[protocol.Channel][][]byte
	unicast    map[protocol.ClientID]map[protocol.Channel][][]byte
	broadcasts map[protocol.Channel][][]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound:    map[protocol.ClientID]map[protocol.Channel][][]byte{},
		unicast:    map[protocol.ClientID]map[protocol.Channel][][]byte{},
		broadcasts: map[protocol.Channel][][]byte{},
	}
}

func (f *fakeTransport) connect(id protocol.ClientID) {
	f.events = append(f.events, ws.Event{Kind: ws.ClientConnected, ClientID: id})
}

func (f *fakeTransport) disconnect(id protocol.ClientID) {
	delete(f.inbound, id)
	f.events = append(f.events, ws.Event{Kind: ws.ClientDisconnected, ClientID: id})
}

func (f *fakeTransport) push(id protocol.ClientID, ch protocol.Channel, b []byte) {
	m := f.inbound[id]
	if m == nil {
		m = map[protocol.Channel][][]byte{}
		f.inbound[id] = m
	}
	m[ch] = append(m[ch], b)
}

func (f *fakeTransport) TakeEvents() []ws.Event {
	ev := f.events
	f.events = nil
	return ev
}

func (f *fakeTransport) Receive(id protocol.ClientID, ch protocol.Channel) ([]byte, bool) {
	q := f.inbound[id][ch]
	if len(q) == 0 {
		return nil, false
	}
	f.inbound[id][ch] = q[1:]
	return q[0], true
}

func (f *fakeTransport) Send(id protocol.ClientID, ch protocol.Channel, b []byte) {
	m := f.unicast[id]
	if m == nil {
		m = map[protocol.Channel][][]byte{}
		f.unicast[id] = m
	}
	m[ch] = append(m[ch], b)
}

func (f *fakeTransport) Broadcast(ch protocol.Channel, b []byte) {
	f.broadcasts[ch] = append(f.broadcasts[ch], b)
}

func decodeAll(t *testing.T, frames [][]byte) []protocol.Message {
	t.Helper()
	out := make([]protocol.Message, 0, len(frames))
	for _, b := range frames {
		m, err := protocol.Decode(b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		out = append(out, m)
	}
	return out
}

func TestEngine_ConnectBroadcastsLifecycle(t *testing.T) {
	tr := newFakeTransport()
	e := NewEngine(tr, 1, nil, nil)

	tr.connect(1)
	e.Tick()

	// The first client saw no pre-existing players.
	if n := len(tr.unicast[1][protocol.ChanServerMessages]); n != 0 {
		t.Fatalf("first client got %d seed PlayerCreate, want 0", n)
	}
	// One broadcast PlayerCreate for the new player.
	msgs := decodeAll(t, tr.broadcasts[protocol.ChanServerMessages])
	if len(msgs) != 1 {
		t.Fatalf("broadcasts=%d want 1", len(msgs))
	}
	pc, ok := msgs[0].(protocol.PlayerCreate)
	if !ok || pc.ClientID != 1 {
		t.Fatalf("unexpected broadcast %+v", msgs[0])
	}
	if pc.Translation.Y != 171 {
		t.Fatalf("spawn height %v, want 171", pc.Translation.Y)
	}
	if pc.Translation.X < -20 || pc.Translation.X > 20 || pc.Translation.Z < -20 || pc.Translation.Z > 20 {
		t.Fatalf("spawn out of deterministic range: %+v", pc.Translation)
	}
	// First client hosts.
	host := decodeAll(t, tr.unicast[1][protocol.ChanHost])
	if len(host) != 1 || !host[0].(protocol.Host).IsHost {
		t.Fatalf("first client should host: %+v", host)
	}

	// Second client is seeded with the first player, then announced.
	tr.connect(2)
	e.Tick()

	seed := decodeAll(t, tr.unicast[2][protocol.ChanServerMessages])
	if len(seed) != 1 {
		t.Fatalf("second client got %d seed messages, want 1", len(seed))
	}
	if seed[0].(protocol.PlayerCreate).ClientID != 1 {
		t.Fatalf("seed message for wrong client: %+v", seed[0])
	}
	all := decodeAll(t, tr.broadcasts[protocol.ChanServerMessages])
	if len(all) != 2 || all[1].(protocol.PlayerCreate).ClientID != 2 {
		t.Fatalf("second broadcast wrong: %+v", all)
	}
	host2 := decodeAll(t, tr.unicast[2][protocol.ChanHost])
	if len(host2) != 1 || host2[0].(protocol.Host).IsHost {
		t.Fatalf("second client must not host: %+v", host2)
	}
}

func TestEngine_InputMostRecentWins(t *testing.T) {
	tr := newFakeTransport()
	e := NewEngine(tr, 1, nil, nil)
	tr.connect(1)
	e.Tick()

	for _, x := range []float32{1, 2, 3} {
		tr.push(1, protocol.ChanInput, protocol.Encode(protocol.PlayerInput{Translation: protocol.Vec3{X: x}}))
	}
	// A corrupt frame in the middle must not disturb the drain.
	tr.push(1, protocol.ChanInput, []byte{0xFF, 0xBA, 0xAD})
	tr.push(1, protocol.ChanInput, protocol.Encode(protocol.PlayerInput{Translation: protocol.Vec3{X: 9}}))
	tr.push(1, protocol.ChanRots, protocol.Encode(protocol.RotationInput{Rotation: protocol.Quat{Y: 1}}))
	e.Tick()

	ent, _ := e.Entity(1)
	tf, ok := e.Transform(ent)
	if !ok {
		t.Fatalf("authoritative transform missing")
	}
	if tf.Translation.X != 9 {
		t.Fatalf("translation %v, want most recent (9)", tf.Translation.X)
	}
	if tf.Rotation.Y != 1 {
		t.Fatalf("rotation not applied: %+v", tf.Rotation)
	}
}

func TestEngine_SnapshotEveryTick(t *testing.T) {
	tr := newFakeTransport()
	e := NewEngine(tr, 1, nil, nil)
	tr.connect(1)
	tr.connect(2)
	e.Tick()
	e.Tick()
	e.Tick()

	snaps := decodeAll(t, tr.broadcasts[protocol.ChanNetworkedEntities])
	if len(snaps) != 3 {
		t.Fatalf("snapshots=%d want 3 (fixed-rate push)", len(snaps))
	}
	last := snaps[2].(protocol.NetworkedEntities)
	if len(last.Entities) != 2 {
		t.Fatalf("snapshot covers %d entities, want 2", len(last.Entities))
	}
	if len(last.Translations) != 2 || len(last.Rotations) != 2 {
		t.Fatalf("snapshot arrays not aligned")
	}
	if last.Entities[0] == last.Entities[1] {
		t.Fatalf("duplicate entity in snapshot")
	}
}

func TestEngine_DisconnectRemovesAndMigratesHost(t *testing.T) {
	tr := newFakeTransport()
	e := NewEngine(tr, 1, nil, nil)
	tr.connect(1)
	tr.connect(2)
	e.Tick()

	ent, _ := e.Entity(1)
	tr.disconnect(1)
	e.Tick()

	if e.Players() != 1 {
		t.Fatalf("players=%d want 1", e.Players())
	}
	if _, ok := e.Transform(ent); ok {
		t.Fatalf("authoritative entity survived disconnect")
	}
	var sawRemove bool
	for _, m := range decodeAll(t, tr.broadcasts[protocol.ChanServerMessages]) {
		if rm, ok := m.(protocol.PlayerRemove); ok {
			if rm.ClientID != 1 {
				t.Fatalf("removed wrong client: %+v", rm)
			}
			sawRemove = true
		}
	}
	if !sawRemove {
		t.Fatalf("no PlayerRemove broadcast")
	}
	// Host migrated to the surviving client.
	host := decodeAll(t, tr.unicast[2][protocol.ChanHost])
	if len(host) != 2 || !host[1].(protocol.Host).IsHost {
		t.Fatalf("host not migrated: %+v", host)
	}

	// The survivor's snapshot no longer carries the removed entity.
	tr.broadcasts[protocol.ChanNetworkedEntities] = nil
	e.Tick()
	snap := decodeAll(t, tr.broadcasts[protocol.ChanNetworkedEntities])[0].(protocol.NetworkedEntities)
	if len(snap.Entities) != 1 {
		t.Fatalf("snapshot entities=%d want 1", len(snap.Entities))
	}
}

func TestEngine_CommandsScoreAndChatRebroadcast(t *testing.T) {
	tr := newFakeTransport()

	var chatLog []string
	obs := &captureObserver{chat: &chatLog}
	e := NewEngine(tr, 1, nil, obs)
	tr.connect(1)
	e.Tick()

	for i := 0; i < 3; i++ {
		tr.push(1, protocol.ChanCommand, protocol.Encode(protocol.PlayerCommand{Kind: protocol.CommandAttack}))
	}
	// Chat with a spoofed sender id: the session identity must win.
	tr.push(1, protocol.ChanChatSend, protocol.Encode(protocol.ChatMessage{ClientID: 42, Text: "hello"}))
	e.Tick()

	chats := decodeAll(t, tr.broadcasts[protocol.ChanChat])
	if len(chats) != 1 {
		t.Fatalf("chat broadcasts=%d want 1", len(chats))
	}
	got := chats[0].(protocol.ChatMessage)
	if got.ClientID != 1 || got.Text != "hello" {
		t.Fatalf("chat rebroadcast wrong: %+v", got)
	}
	if len(chatLog) != 1 || chatLog[0] != "hello" {
		t.Fatalf("observer missed chat: %v", chatLog)
	}

	tr.disconnect(1)
	e.Tick()
	if obs.lastScore != 3 {
		t.Fatalf("final score %d, want 3", obs.lastScore)
	}
}

func TestEngine_WorldEntitiesChannel(t *testing.T) {
	tr := newFakeTransport()
	e := NewEngine(tr, 1, nil, nil)
	tr.connect(1)
	e.Tick()
	if len(tr.broadcasts[protocol.ChanNonNetworkedEntities]) != 0 {
		t.Fatalf("no world entities yet, channel should stay quiet")
	}

	id := e.SpawnWorldEntity(entityTransform(protocol.Vec3{X: 5}))
	e.Tick()
	snaps := decodeAll(t, tr.broadcasts[protocol.ChanNonNetworkedEntities])
	if len(snaps) != 1 {
		t.Fatalf("world snapshots=%d want 1", len(snaps))
	}
	got := snaps[0].(protocol.NonNetworkedEntities)
	if len(got.Entities) != 1 || got.Entities[0] != id {
		t.Fatalf("world snapshot wrong: %+v", got)
	}

	if !e.DespawnWorldEntity(id) {
		t.Fatalf("despawn world entity failed")
	}
	// Player entities are not despawnable through the world-entity path.
	pent, _ := e.Entity(1)
	if e.DespawnWorldEntity(pent) {
		t.Fatalf("player entity despawned via world path")
	}
}

type captureObserver struct {
	chat      *[]string
	lastScore int
}

func (o *captureObserver) PlayerConnected(protocol.ClientID, protocol.Vec3) {}
func (o *captureObserver) PlayerDisconnected(_ protocol.ClientID, score int) {
	o.lastScore = score
}
func (o *captureObserver) ChatReceived(_ protocol.ClientID, text string) {
	*o.chat = append(*o.chat, text)
}

func TestEngine_ChatRateLimited(t *testing.T) {
	tr := newFakeTransport()
	e := NewEngine(tr, 1, nil, nil)
	e.SetLimits(Limits{ChatWindowTicks: 100, ChatMax: 2})

	tr.connect(1)
	for i := 0; i < 5; i++ {
		tr.push(1, protocol.ChanChatSend, protocol.Encode(protocol.ChatMessage{ClientID: 1, Text: "spam"}))
	}
	e.Tick()

	if got := len(tr.broadcasts[protocol.ChanChat]); got != 2 {
		t.Fatalf("rebroadcast %d chat lines, want 2", got)
	}

	// Far side of the window: the budget refreshes.
	for i := 0; i < 99; i++ {
		e.Tick()
	}
	tr.push(1, protocol.ChanChatSend, protocol.Encode(protocol.ChatMessage{ClientID: 1, Text: "back"}))
	e.Tick()
	if got := len(tr.broadcasts[protocol.ChanChat]); got != 3 {
		t.Fatalf("rebroadcast %d chat lines after window reset, want 3", got)
	}
}

func TestEngine_CommandRateLimited(t *testing.T) {
	tr := newFakeTransport()
	obs := &captureObserver{chat: &[]string{}}
	e := NewEngine(tr, 1, nil, obs)
	e.SetLimits(Limits{CommandWindowTicks: 100, CommandMax: 3})

	tr.connect(1)
	for i := 0; i < 10; i++ {
		tr.push(1, protocol.ChanCommand, protocol.Encode(protocol.PlayerCommand{Kind: protocol.CommandAttack}))
	}
	e.Tick()
	tr.disconnect(1)
	e.Tick()

	if obs.lastScore != 3 {
		t.Fatalf("score = %d, want 3 (throttled)", obs.lastScore)
	}
}
