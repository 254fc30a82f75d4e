// Package entity is the minimal transform store the sync engines mutate.
// Ids are (generation, index) pairs: indexes are recycled on despawn with a
// bumped generation, so a stale id can never resolve to a newer entity.
package entity

import "voxelsync.gg/internal/protocol"

type Transform struct {
	Translation protocol.Vec3
	Rotation    protocol.Quat
}

// Kind classifies what a slot represents.
type Kind uint8

const (
	KindNone Kind = iota
	KindPlayer
	KindWorld
)

type slot struct {
	gen        uint32
	alive      bool
	kind       Kind
	controlled bool
	transform  Transform
}

// Registry is owned by exactly one engine and mutated only on its tick.
type Registry struct {
	slots []slot
	free  []uint32
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Spawn(kind Kind, t Transform) protocol.EntityID {
	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.slots = append(r.slots, slot{})
		idx = uint32(len(r.slots) - 1)
	}
	s := &r.slots[idx]
	s.gen++
	s.alive = true
	s.kind = kind
	s.controlled = false
	s.transform = t
	return protocol.EntityID{Gen: s.gen, Idx: idx + 1}
}

func (r *Registry) Despawn(id protocol.EntityID) bool {
	s := r.resolve(id)
	if s == nil {
		return false
	}
	s.alive = false
	s.kind = KindNone
	s.controlled = false
	r.free = append(r.free, id.Idx-1)
	return true
}

func (r *Registry) Alive(id protocol.EntityID) bool {
	return r.resolve(id) != nil
}

func (r *Registry) Kind(id protocol.EntityID) Kind {
	if s := r.resolve(id); s != nil {
		return s.kind
	}
	return KindNone
}

// SetControlled tags the locally-controlled entity; its transform is never
// overwritten by snapshot application.
func (r *Registry) SetControlled(id protocol.EntityID, v bool) {
	if s := r.resolve(id); s != nil {
		s.controlled = v
	}
}

func (r *Registry) Controlled(id protocol.EntityID) bool {
	if s := r.resolve(id); s != nil {
		return s.controlled
	}
	return false
}

func (r *Registry) Transform(id protocol.EntityID) (Transform, bool) {
	if s := r.resolve(id); s != nil {
		return s.transform, true
	}
	return Transform{}, false
}

func (r *Registry) SetTransform(id protocol.EntityID, t Transform) bool {
	if s := r.resolve(id); s != nil {
		s.transform = t
		return true
	}
	return false
}

func (r *Registry) SetTranslation(id protocol.EntityID, v protocol.Vec3) bool {
	if s := r.resolve(id); s != nil {
		s.transform.Translation = v
		return true
	}
	return false
}

func (r *Registry) SetRotation(id protocol.EntityID, q protocol.Quat) bool {
	if s := r.resolve(id); s != nil {
		s.transform.Rotation = q
		return true
	}
	return false
}

// Each calls fn for every live entity. Iteration order is slot order, which
// is stable between spawns/despawns.
func (r *Registry) Each(fn func(id protocol.EntityID, kind Kind, t Transform)) {
	for i := range r.slots {
		s := &r.slots[i]
		if !s.alive {
			continue
		}
		fn(protocol.EntityID{Gen: s.gen, Idx: uint32(i) + 1}, s.kind, s.transform)
	}
}

func (r *Registry) Count() int {
	n := 0
	for i := range r.slots {
		if r.slots[i].alive {
			n++
		}
	}
	return n
}

func (r *Registry) resolve(id protocol.EntityID) *slot {
	if id.Idx == 0 || int(id.Idx) > len(r.slots) {
		return nil
	}
	s := &r.slots[id.Idx-1]
	if !s.alive || s.gen != id.Gen {
		return nil
	}
	return s
}
