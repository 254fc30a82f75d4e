package protocol

import (
	"encoding/binary"
	"math"
)

// Wire format: one tag byte, then the message fields. Integers are uvarints,
// floats are IEEE754 little-endian, strings are uvarint length + bytes.
// Decode consumes the whole buffer; trailing garbage fails the frame.

const (
	// MaxSnapshotEntities bounds a single snapshot. Anything larger is
	// treated as corrupt rather than allocated.
	MaxSnapshotEntities = 4096

	// MaxChatBytes bounds one chat message payload.
	MaxChatBytes = 512
)

func Encode(m Message) []byte {
	e := encoder{buf: make([]byte, 0, 64)}
	e.u8(m.Tag())
	switch v := m.(type) {
	case PlayerCreate:
		e.uvarint(uint64(v.ClientID))
		e.entity(v.Entity)
		e.vec3(v.Translation)
	case PlayerRemove:
		e.uvarint(uint64(v.ClientID))
	case NetworkedEntities:
		e.snapshot(v.Entities, v.Translations, v.Rotations)
	case NonNetworkedEntities:
		e.snapshot(v.Entities, v.Translations, v.Rotations)
	case ChatMessage:
		e.uvarint(uint64(v.ClientID))
		e.str(v.Text)
	case PlayerInput:
		e.vec3(v.Translation)
	case RotationInput:
		e.quat(v.Rotation)
	case PlayerCommand:
		e.u8(v.Kind)
		e.vec3(v.Target)
	case Host:
		e.bool(v.IsHost)
	}
	return e.buf
}

func Decode(b []byte) (Message, error) {
	d := decoder{buf: b}
	tag := d.u8()
	var m Message
	switch tag {
	case TagPlayerCreate:
		var v PlayerCreate
		v.ClientID = ClientID(d.uvarint())
		v.Entity = d.entity()
		v.Translation = d.vec3()
		m = v
	case TagPlayerRemove:
		var v PlayerRemove
		v.ClientID = ClientID(d.uvarint())
		m = v
	case TagNetworkedEntities:
		var v NetworkedEntities
		v.Entities, v.Translations, v.Rotations = d.snapshot()
		m = v
	case TagNonNetworkedEntities:
		var v NonNetworkedEntities
		v.Entities, v.Translations, v.Rotations = d.snapshot()
		m = v
	case TagChatMessage:
		var v ChatMessage
		v.ClientID = ClientID(d.uvarint())
		v.Text = d.str()
		m = v
	case TagPlayerInput:
		var v PlayerInput
		v.Translation = d.vec3()
		m = v
	case TagRotationInput:
		var v RotationInput
		v.Rotation = d.quat()
		m = v
	case TagPlayerCommand:
		var v PlayerCommand
		v.Kind = d.u8()
		v.Target = d.vec3()
		m = v
	case TagHost:
		var v Host
		v.IsHost = d.bool()
		m = v
	default:
		if d.err == nil {
			d.fail("unknown message tag")
		}
	}
	if d.err == nil && d.pos != len(d.buf) {
		d.fail("trailing bytes")
	}
	if d.err != nil {
		return nil, d.err
	}
	return m, nil
}

type encoder struct {
	buf []byte
}

func (e *encoder) u8(v uint8) { e.buf = append(e.buf, v) }

func (e *encoder) bool(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func (e *encoder) uvarint(v uint64) {
	e.buf = binary.AppendUvarint(e.buf, v)
}

func (e *encoder) f32(v float32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, math.Float32bits(v))
}

func (e *encoder) str(s string) {
	e.uvarint(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) entity(id EntityID) {
	e.uvarint(uint64(id.Gen))
	e.uvarint(uint64(id.Idx))
}

func (e *encoder) vec3(v Vec3) {
	e.f32(v.X)
	e.f32(v.Y)
	e.f32(v.Z)
}

func (e *encoder) quat(q Quat) {
	e.f32(q.X)
	e.f32(q.Y)
	e.f32(q.Z)
	e.f32(q.W)
}

func (e *encoder) snapshot(ids []EntityID, ts []Vec3, rs []Quat) {
	e.uvarint(uint64(len(ids)))
	for _, id := range ids {
		e.entity(id)
	}
	for _, t := range ts {
		e.vec3(t)
	}
	for _, r := range rs {
		e.quat(r)
	}
}

type decoder struct {
	buf []byte
	pos int
	err error
}

func (d *decoder) fail(reason string) {
	if d.err == nil {
		d.err = &DecodeError{Offset: d.pos, Reason: reason}
	}
}

func (d *decoder) u8() uint8 {
	if d.err != nil {
		return 0
	}
	if d.pos >= len(d.buf) {
		d.fail("short buffer")
		return 0
	}
	v := d.buf[d.pos]
	d.pos++
	return v
}

func (d *decoder) bool() bool {
	switch d.u8() {
	case 0:
		return false
	case 1:
		return true
	default:
		d.fail("bad bool")
		return false
	}
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf[d.pos:])
	if n <= 0 {
		d.fail("bad varint")
		return 0
	}
	d.pos += n
	return v
}

func (d *decoder) f32() float32 {
	if d.err != nil {
		return 0
	}
	if d.pos+4 > len(d.buf) {
		d.fail("short buffer")
		return 0
	}
	v := math.Float32frombits(binary.LittleEndian.Uint32(d.buf[d.pos:]))
	d.pos += 4
	return v
}

func (d *decoder) str() string {
	n := d.uvarint()
	if d.err != nil {
		return ""
	}
	if n > MaxChatBytes {
		d.fail("string too long")
		return ""
	}
	if d.pos+int(n) > len(d.buf) {
		d.fail("short buffer")
		return ""
	}
	s := string(d.buf[d.pos : d.pos+int(n)])
	d.pos += int(n)
	return s
}

func (d *decoder) entity() EntityID {
	gen := d.uvarint()
	idx := d.uvarint()
	if gen > math.MaxUint32 || idx > math.MaxUint32 {
		d.fail("entity id out of range")
		return EntityID{}
	}
	return EntityID{Gen: uint32(gen), Idx: uint32(idx)}
}

func (d *decoder) vec3() Vec3 {
	return Vec3{X: d.f32(), Y: d.f32(), Z: d.f32()}
}

func (d *decoder) quat() Quat {
	return Quat{X: d.f32(), Y: d.f32(), Z: d.f32(), W: d.f32()}
}

func (d *decoder) snapshot() ([]EntityID, []Vec3, []Quat) {
	n := d.uvarint()
	if d.err != nil {
		return nil, nil, nil
	}
	if n > MaxSnapshotEntities {
		d.fail("snapshot too large")
		return nil, nil, nil
	}
	ids := make([]EntityID, 0, n)
	for i := uint64(0); i < n; i++ {
		ids = append(ids, d.entity())
	}
	ts := make([]Vec3, 0, n)
	for i := uint64(0); i < n; i++ {
		ts = append(ts, d.vec3())
	}
	rs := make([]Quat, 0, n)
	for i := uint64(0); i < n; i++ {
		rs = append(rs, d.quat())
	}
	if d.err != nil {
		return nil, nil, nil
	}
	return ids, ts, rs
}
