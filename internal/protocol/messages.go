package protocol

// Message tags. One byte on the wire, first byte of every encoded frame.
const (
	TagPlayerCreate uint8 = iota + 1
	TagPlayerRemove
	TagNetworkedEntities
	TagNonNetworkedEntities
	TagChatMessage
	TagPlayerInput
	TagRotationInput
	TagPlayerCommand
	TagHost
)

// Message is the closed set of wire messages. One network frame carries
// exactly one encoded message; there is no partial-message buffering.
type Message interface {
	Tag() uint8
}

// PlayerCreate announces a player entering the world (lifecycle channel).
type PlayerCreate struct {
	ClientID    ClientID
	Entity      EntityID
	Translation Vec3
}

// PlayerRemove announces a player leaving the world (lifecycle channel).
type PlayerRemove struct {
	ClientID ClientID
}

// NetworkedEntities is the per-tick authoritative player snapshot. The three
// slices are index-aligned: the i-th entity owns the i-th translation and
// rotation. No entity appears twice within one snapshot.
type NetworkedEntities struct {
	Entities     []EntityID
	Translations []Vec3
	Rotations    []Quat
}

// NonNetworkedEntities carries world-owned (non-player) entity transforms,
// same shape and alignment rules as NetworkedEntities.
type NonNetworkedEntities struct {
	Entities     []EntityID
	Translations []Vec3
	Rotations    []Quat
}

type ChatMessage struct {
	ClientID ClientID
	Text     string
}

// PlayerInput is the client's predicted translation, pushed every tick.
type PlayerInput struct {
	Translation Vec3
}

// RotationInput is the client's look rotation, pushed every tick.
type RotationInput struct {
	Rotation Quat
}

// PlayerCommand kinds.
const (
	CommandAttack uint8 = iota + 1
	CommandInteract
)

// PlayerCommand is a discrete action aimed at a world position.
type PlayerCommand struct {
	Kind   uint8
	Target Vec3
}

// Host tells a client whether it is the session host.
type Host struct {
	IsHost bool
}

func (PlayerCreate) Tag() uint8         { return TagPlayerCreate }
func (PlayerRemove) Tag() uint8         { return TagPlayerRemove }
func (NetworkedEntities) Tag() uint8    { return TagNetworkedEntities }
func (NonNetworkedEntities) Tag() uint8 { return TagNonNetworkedEntities }
func (ChatMessage) Tag() uint8          { return TagChatMessage }
func (PlayerInput) Tag() uint8          { return TagPlayerInput }
func (RotationInput) Tag() uint8        { return TagRotationInput }
func (PlayerCommand) Tag() uint8        { return TagPlayerCommand }
func (Host) Tag() uint8                 { return TagHost }
