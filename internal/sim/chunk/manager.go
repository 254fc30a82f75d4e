package chunk

import (
	"sort"

	"voxelsync.gg/internal/protocol"
)

// Generator is the terrain collaborator: it fills a spawned chunk's padded
// voxel buffer. The manager never looks inside the data it produces.
type Generator interface {
	Generate(*Chunk)
}

// ReadyEvent signals that a chunk finished generating and may be consumed
// (meshed, rendered) by external collaborators.
type ReadyEvent struct {
	Key   Key
	Chunk *Chunk
}

type Config struct {
	// ViewDistance is the residency radius in chunk units. Candidates are
	// the offsets with dx*dx+dz*dz < ViewDistance^2.
	ViewDistance int

	// MaxQueuedGen bounds the generation request queue. A spawned chunk
	// that cannot be queued stays in Load and retries next tick.
	MaxQueuedGen int

	Generator Generator
}

func (c *Config) applyDefaults() {
	if c.ViewDistance <= 0 {
		c.ViewDistance = 10
	}
	if c.MaxQueuedGen <= 0 {
		c.MaxQueuedGen = 1024
	}
}

// Manager drives the chunk residency state machine around a moving viewer.
// The chunk map is owned here exclusively: insertion happens only on the
// spawn path, removal only on the unload path.
type Manager struct {
	cfg Config

	chunks map[Key]*Chunk

	// Generation deque: new requests are inserted at the front, the
	// per-tick drain consumes from the back, preserving request order.
	genQueue []Key

	// loadPending keeps spawn order (closest first) for chunks still in
	// Load, so a full generation queue cannot reshuffle priorities.
	loadPending []Key

	ready []ReadyEvent

	// Per-tick request queues between the visibility stage and the
	// spawn/despawn execution stages.
	spawnReqs   []Key
	despawnReqs []Key
}

func NewManager(cfg Config) *Manager {
	cfg.applyDefaults()
	return &Manager{
		cfg:    cfg,
		chunks: map[Key]*Chunk{},
	}
}

// Lookup returns the resident chunk at k, if any.
func (m *Manager) Lookup(k Key) (*Chunk, bool) {
	c, ok := m.chunks[k]
	return c, ok
}

func (m *Manager) Resident() int { return len(m.chunks) }

func (m *Manager) QueuedGen() int { return len(m.genQueue) }

// TakeReady drains the ready notifications accumulated since the last call.
func (m *Manager) TakeReady() []ReadyEvent {
	ev := m.ready
	m.ready = nil
	return ev
}

// Tick runs one full lifecycle pass for the given viewer position. Stage
// order is fixed: visibility, spawns, load marking, generation, despawn
// marking, destruction. Destruction runs last so a chunk spawned this tick
// is never destroyed before its generation completion was checked.
func (m *Manager) Tick(viewer protocol.Vec3) {
	center := WorldToKey(viewer)

	m.updateVisible(center)
	m.createChunks()
	m.enqueueLoads()
	m.generateChunks()
	m.prepareForUnload()
	m.destroyChunks()
}

func (m *Manager) updateVisible(center Key) {
	r := m.cfg.ViewDistance
	r2 := r * r

	m.spawnReqs = m.spawnReqs[:0]
	m.despawnReqs = m.despawnReqs[:0]

	type candidate struct {
		key   Key
		dist2 int
	}
	var cands []candidate
	for dx := -r; dx <= r; dx++ {
		for dz := -r; dz <= r; dz++ {
			d2 := dx*dx + dz*dz
			if d2 >= r2 {
				continue
			}
			k := Key{CX: center.CX + dx, CZ: center.CZ + dz}
			if _, resident := m.chunks[k]; resident {
				continue
			}
			cands = append(cands, candidate{key: k, dist2: d2})
		}
	}
	// Closest chunks load first.
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].dist2 < cands[j].dist2 })
	for _, c := range cands {
		m.spawnReqs = append(m.spawnReqs, c.key)
	}

	for k := range m.chunks {
		dx := k.CX - center.CX
		dz := k.CZ - center.CZ
		if dx*dx+dz*dz > r2 {
			m.despawnReqs = append(m.despawnReqs, k)
		}
	}
}

func (m *Manager) createChunks() {
	for _, k := range m.spawnReqs {
		if _, ok := m.chunks[k]; ok {
			continue
		}
		m.chunks[k] = newChunk(k)
		m.loadPending = append(m.loadPending, k)
	}
	m.spawnReqs = m.spawnReqs[:0]
}

func (m *Manager) enqueueLoads() {
	kept := m.loadPending[:0]
	for _, k := range m.loadPending {
		c, ok := m.chunks[k]
		if !ok || c.State != StateLoad {
			continue
		}
		if len(m.genQueue) >= m.cfg.MaxQueuedGen {
			// Queue full; the chunk stays in Load and retries next tick.
			kept = append(kept, k)
			continue
		}
		c.State = StateGenerate
		m.genQueue = append([]Key{k}, m.genQueue...)
	}
	m.loadPending = kept
}

func (m *Manager) generateChunks() {
	budget := m.cfg.ViewDistance / 2
	for i := 0; i < budget; i++ {
		n := len(m.genQueue)
		if n == 0 {
			return
		}
		k := m.genQueue[n-1]
		m.genQueue = m.genQueue[:n-1]

		c, ok := m.chunks[k]
		if !ok {
			continue
		}
		if c.State != StateGenerate {
			// The chunk was marked for unload (and possibly respawned)
			// after it was queued; its stale request is dropped.
			continue
		}
		if m.cfg.Generator != nil {
			m.cfg.Generator.Generate(c)
		}
		c.State = StateDone
		m.ready = append(m.ready, ReadyEvent{Key: k, Chunk: c})
	}
}

func (m *Manager) prepareForUnload() {
	for _, k := range m.despawnReqs {
		if c, ok := m.chunks[k]; ok {
			c.State = StateUnload
		}
	}
	m.despawnReqs = m.despawnReqs[:0]
}

func (m *Manager) destroyChunks() {
	for k, c := range m.chunks {
		if c.State != StateUnload {
			continue
		}
		c.Voxels = nil
		delete(m.chunks, k)
	}
}
