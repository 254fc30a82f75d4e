package protocol

import "fmt"

// EntityID identifies a simulated object as a (generation, index) pair.
// Server and client allocate from independent id spaces; translation between
// the two is always explicit (see the netmap package).
type EntityID struct {
	Gen uint32
	Idx uint32
}

// Zero is never allocated; it doubles as "no entity".
func (e EntityID) IsZero() bool { return e == EntityID{} }

func (e EntityID) String() string { return fmt.Sprintf("E%d.%d", e.Idx, e.Gen) }

// ClientID is the transport-assigned connection identity.
type ClientID uint64

type Vec3 struct {
	X, Y, Z float32
}

type Quat struct {
	X, Y, Z, W float32
}

// IdentityQuat is the no-rotation value used for freshly spawned entities.
func IdentityQuat() Quat { return Quat{W: 1} }
