package chunk

import (
	"testing"

	"voxelsync.gg/internal/protocol"
)

type countingGen struct {
	calls []Key
}

func (g *countingGen) Generate(c *Chunk) { g.calls = append(g.calls, c.Key) }

func runTicks(m *Manager, n int, viewer protocol.Vec3) {
	for i := 0; i < n; i++ {
		m.Tick(viewer)
	}
}

func TestManager_CandidateSetRadius3(t *testing.T) {
	m := NewManager(Config{ViewDistance: 3, Generator: HashGen{Seed: 1}})

	// Converge: enough ticks to drain every generation request.
	runTicks(m, 64, protocol.Vec3{})

	want := map[Key]bool{}
	for dx := -3; dx <= 3; dx++ {
		for dz := -3; dz <= 3; dz++ {
			if dx*dx+dz*dz < 9 {
				want[Key{CX: dx, CZ: dz}] = true
			}
		}
	}
	if m.Resident() != len(want) {
		t.Fatalf("resident=%d want %d", m.Resident(), len(want))
	}
	for k := range want {
		c, ok := m.Lookup(k)
		if !ok {
			t.Fatalf("missing chunk %v", k)
		}
		if c.State != StateDone {
			t.Fatalf("chunk %v state=%s want Done", k, c.State)
		}
	}
	// The boundary ring (dx^2+dz^2 >= 9) must be absent.
	if _, ok := m.Lookup(Key{CX: 3, CZ: 0}); ok {
		t.Fatalf("boundary chunk (3,0) must not be resident")
	}
	if _, ok := m.Lookup(Key{CX: 2, CZ: 2}); !ok {
		t.Fatalf("chunk (2,2) has dist^2=8 < 9 and must be resident")
	}
}

func TestManager_DespawnOutOfRange(t *testing.T) {
	m := NewManager(Config{ViewDistance: 3, Generator: HashGen{Seed: 1}})
	runTicks(m, 64, protocol.Vec3{})

	// Force a far resident chunk in by moving the viewer away and back.
	runTicks(m, 64, protocol.Vec3{X: 5 * ChunkScale, Z: 5 * ChunkScale})
	if _, ok := m.Lookup(Key{CX: 5, CZ: 5}); !ok {
		t.Fatalf("(5,5) should be resident around the far viewer")
	}

	// One tick back at the origin: (5,5) leaves, the near set stays.
	m.Tick(protocol.Vec3{})
	if _, ok := m.Lookup(Key{CX: 5, CZ: 5}); ok {
		t.Fatalf("(5,5) should have been despawned")
	}
	if _, ok := m.Lookup(Key{CX: 0, CZ: 0}); !ok {
		t.Fatalf("(0,0) must survive the despawn pass")
	}
	if _, ok := m.Lookup(Key{CX: 1, CZ: 0}); !ok {
		t.Fatalf("(1,0) must survive the despawn pass")
	}
}

func TestManager_GenerationCapPerTick(t *testing.T) {
	gen := &countingGen{}
	m := NewManager(Config{ViewDistance: 10, Generator: gen})

	m.Tick(protocol.Vec3{})
	// R=10 spawns far more than 20 candidates; the first tick drains
	// exactly R/2 = 5 of them.
	if got := len(gen.calls); got != 5 {
		t.Fatalf("generated %d on first tick, want 5", got)
	}
	queued := m.QueuedGen()

	m.Tick(protocol.Vec3{})
	if got := len(gen.calls); got != 10 {
		t.Fatalf("generated %d after second tick, want 10", got)
	}
	if m.QueuedGen() != queued-5 {
		t.Fatalf("queue shrank by %d, want 5", queued-m.QueuedGen())
	}
}

func TestManager_ClosestChunksGenerateFirst(t *testing.T) {
	gen := &countingGen{}
	m := NewManager(Config{ViewDistance: 10, Generator: gen})
	m.Tick(protocol.Vec3{})

	if len(gen.calls) == 0 {
		t.Fatalf("no generation ran")
	}
	if gen.calls[0] != (Key{CX: 0, CZ: 0}) {
		t.Fatalf("first generated chunk %v, want (0,0)", gen.calls[0])
	}
	prev := 0
	for _, k := range gen.calls {
		d2 := k.CX*k.CX + k.CZ*k.CZ
		if d2 < prev {
			t.Fatalf("generation order not closest-first: %v after dist^2=%d", k, prev)
		}
		prev = d2
	}
}

func TestManager_ReadyEventsFireOncePerChunk(t *testing.T) {
	m := NewManager(Config{ViewDistance: 3, Generator: HashGen{Seed: 7}})

	seen := map[Key]int{}
	for i := 0; i < 64; i++ {
		m.Tick(protocol.Vec3{})
		for _, ev := range m.TakeReady() {
			if ev.Chunk == nil {
				t.Fatalf("ready event without chunk handle")
			}
			if ev.Chunk.State != StateDone {
				t.Fatalf("ready chunk %v state=%s", ev.Key, ev.Chunk.State)
			}
			seen[ev.Key]++
		}
	}
	if len(seen) != m.Resident() {
		t.Fatalf("ready events for %d chunks, resident %d", len(seen), m.Resident())
	}
	for k, n := range seen {
		if n != 1 {
			t.Fatalf("chunk %v raised %d ready events", k, n)
		}
	}
}

func TestManager_UnloadWhileStillLoading(t *testing.T) {
	gen := &countingGen{}
	// Large view distance so most chunks are still queued after one tick.
	m := NewManager(Config{ViewDistance: 10, Generator: gen})
	m.Tick(protocol.Vec3{})
	if m.QueuedGen() == 0 {
		t.Fatalf("expected a backlog of queued generation")
	}

	// Teleport far away: every old chunk is out of range regardless of its
	// state and must be destroyed; stale queue entries are dropped.
	m.Tick(protocol.Vec3{X: 100 * ChunkScale, Z: 100 * ChunkScale})
	if _, ok := m.Lookup(Key{CX: 0, CZ: 0}); ok {
		t.Fatalf("(0,0) should have been unloaded after teleport")
	}
	m.TakeReady()

	// Draining the stale backlog must never resurrect destroyed chunks,
	// and no ready event may reference a chunk outside the new radius.
	for i := 0; i < 128; i++ {
		m.Tick(protocol.Vec3{X: 100 * ChunkScale, Z: 100 * ChunkScale})
		for _, ev := range m.TakeReady() {
			dx := ev.Key.CX - 100
			dz := ev.Key.CZ - 100
			if dx*dx+dz*dz >= 100 {
				t.Fatalf("ready event for out-of-range chunk %v", ev.Key)
			}
		}
	}
	if _, ok := m.Lookup(Key{CX: 0, CZ: 0}); ok {
		t.Fatalf("stale queue entry resurrected (0,0)")
	}
}

func TestManager_PaddedBufferSize(t *testing.T) {
	m := NewManager(Config{ViewDistance: 2, Generator: HashGen{Seed: 3}})
	runTicks(m, 16, protocol.Vec3{})

	c, ok := m.Lookup(Key{})
	if !ok {
		t.Fatalf("origin chunk missing")
	}
	if len(c.Voxels) != BufferLen {
		t.Fatalf("buffer len=%d want %d", len(c.Voxels), BufferLen)
	}
	// Padding cells are addressable on every side.
	_ = c.Get(-1, -1, -1)
	_ = c.Get(Width, Height, Depth)
}

func TestWorldToKey_NegativeCoords(t *testing.T) {
	if k := WorldToKey(protocol.Vec3{X: -0.5, Z: -0.5}); k != (Key{CX: -1, CZ: -1}) {
		t.Fatalf("negative world coords map to %v, want (-1,-1)", k)
	}
	if k := WorldToKey(protocol.Vec3{X: ChunkScale, Z: 0}); k != (Key{CX: 1, CZ: 0}) {
		t.Fatalf("boundary maps to %v, want (1,0)", k)
	}
}
