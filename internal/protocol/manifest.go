package protocol

// The manifest is a machine-readable description of the wire surface:
// protocol id, channel table, and message tags. Tooling (bots, dissectors)
// consumes it as JSON; the schema under schemas/ pins its shape.

type Manifest struct {
	ProtocolID uint64            `json:"protocol_id"`
	Channels   []ChannelManifest `json:"channels"`
	Messages   []MessageManifest `json:"messages"`
}

type ChannelManifest struct {
	ID          uint8  `json:"id"`
	Name        string `json:"name"`
	Reliable    bool   `json:"reliable"`
	ServerBound bool   `json:"server_bound"`
}

type MessageManifest struct {
	Tag  uint8  `json:"tag"`
	Name string `json:"name"`
}

func BuildManifest() Manifest {
	m := Manifest{ProtocolID: ProtocolID}
	for _, c := range Channels() {
		m.Channels = append(m.Channels, ChannelManifest{
			ID:          uint8(c),
			Name:        c.String(),
			Reliable:    c.Reliable(),
			ServerBound: c.ServerBound(),
		})
	}
	m.Messages = []MessageManifest{
		{Tag: TagPlayerCreate, Name: "PlayerCreate"},
		{Tag: TagPlayerRemove, Name: "PlayerRemove"},
		{Tag: TagNetworkedEntities, Name: "NetworkedEntities"},
		{Tag: TagNonNetworkedEntities, Name: "NonNetworkedEntities"},
		{Tag: TagChatMessage, Name: "ChatMessage"},
		{Tag: TagPlayerInput, Name: "PlayerInput"},
		{Tag: TagRotationInput, Name: "RotationInput"},
		{Tag: TagPlayerCommand, Name: "PlayerCommand"},
		{Tag: TagHost, Name: "Host"},
	}
	return m
}
