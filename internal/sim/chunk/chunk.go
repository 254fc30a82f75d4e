package chunk

import "voxelsync.gg/internal/protocol"

// Chunk extent in voxels. The stored buffer carries one extra voxel of
// padding on every side so meshing can sample across chunk seams without
// touching the neighbor chunk.
const (
	Width  = 32
	Height = 32
	Depth  = 32

	padded       = 1
	strideX      = Width + 2*padded
	strideY      = Height + 2*padded
	strideZ      = Depth + 2*padded
	BufferLen    = strideX * strideY * strideZ
	ChunkScale   = Width // world units per chunk on X/Z
)

// Voxel is four opaque attribute bytes; their meaning belongs to the
// generator and the mesher, not to the lifecycle manager.
type Voxel struct {
	Attributes [4]uint8
}

// Key addresses a chunk by its 2D surface coordinate.
type Key struct {
	CX int
	CZ int
}

// LoadState is the chunk lifecycle: Load -> Generate -> Done on the
// population path, or (any) -> Unload -> destroyed on the eviction path.
type LoadState uint8

const (
	StateLoad LoadState = iota
	StateGenerate
	StateDone
	StateUnload
)

func (s LoadState) String() string {
	switch s {
	case StateLoad:
		return "Load"
	case StateGenerate:
		return "Generate"
	case StateDone:
		return "Done"
	case StateUnload:
		return "Unload"
	}
	return "Unknown"
}

type Chunk struct {
	Key   Key
	State LoadState

	// Voxels is the padded block buffer, allocated at spawn and released
	// at destruction. Local coordinates run -1..Width (and likewise for
	// Y/Z); the -1 and max rows are the seam padding.
	Voxels []Voxel
}

func newChunk(k Key) *Chunk {
	return &Chunk{
		Key:    k,
		State:  StateLoad,
		Voxels: make([]Voxel, BufferLen),
	}
}

func index(x, y, z int) int {
	return (x + padded) + (z+padded)*strideX + (y+padded)*strideX*strideZ
}

func (c *Chunk) Get(x, y, z int) Voxel {
	return c.Voxels[index(x, y, z)]
}

func (c *Chunk) Set(x, y, z int, v Voxel) {
	c.Voxels[index(x, y, z)] = v
}

// WorldToKey maps a world-space position to its containing chunk coordinate.
func WorldToKey(pos protocol.Vec3) Key {
	return Key{
		CX: floorDiv(int(floor32(pos.X)), ChunkScale),
		CZ: floorDiv(int(floor32(pos.Z)), ChunkScale),
	}
}

// KeyToWorld is the origin of the chunk in world space.
func KeyToWorld(k Key) protocol.Vec3 {
	return protocol.Vec3{
		X: float32(k.CX * ChunkScale),
		Z: float32(k.CZ * ChunkScale),
	}
}

func floorDiv(a, b int) int {
	// b > 0
	q := a / b
	if a%b < 0 {
		q--
	}
	return q
}

func floor32(v float32) float32 {
	i := float32(int(v))
	if v < i {
		i--
	}
	return i
}
