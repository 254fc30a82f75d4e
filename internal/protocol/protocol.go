package protocol

// ProtocolID must match between client and server; the transport refuses
// connections carrying any other value during the handshake.
const ProtocolID uint64 = 7

// Channel is a logical, independently-ordered message stream within one
// connection. FIFO holds per channel; nothing is guaranteed across channels.
type Channel uint8

// Server -> client channels.
const (
	ChanServerMessages Channel = iota // lifecycle (PlayerCreate/PlayerRemove)
	ChanHost                          // host assignment
	ChanNetworkedEntities             // high-frequency player snapshots
	ChanNonNetworkedEntities          // high-frequency world-entity snapshots
	ChanChat                          // chat fan-out

	// Client -> server channels.
	ChanInput   // translation input
	ChanRots    // look rotation input
	ChanCommand // discrete actions
	ChanChatSend

	channelCount
)

// Reliable reports the delivery class of a channel. Unreliable channels may
// shed backlog under pressure; reliable channels never drop.
func (c Channel) Reliable() bool {
	switch c {
	case ChanNetworkedEntities, ChanNonNetworkedEntities, ChanInput, ChanRots:
		return false
	}
	return true
}

// ServerBound reports whether the channel carries client -> server traffic.
func (c Channel) ServerBound() bool {
	switch c {
	case ChanInput, ChanRots, ChanCommand, ChanChatSend:
		return true
	}
	return false
}

func (c Channel) Valid() bool { return c < channelCount }

func (c Channel) String() string {
	switch c {
	case ChanServerMessages:
		return "ServerMessages"
	case ChanHost:
		return "Host"
	case ChanNetworkedEntities:
		return "NetworkedEntities"
	case ChanNonNetworkedEntities:
		return "NonNetworkedEntities"
	case ChanChat:
		return "ChatChannel"
	case ChanInput:
		return "Input"
	case ChanRots:
		return "Rots"
	case ChanCommand:
		return "Command"
	case ChanChatSend:
		return "Chat"
	}
	return "Unknown"
}

// Channels lists every defined channel in wire order.
func Channels() []Channel {
	out := make([]Channel, 0, int(channelCount))
	for c := Channel(0); c < channelCount; c++ {
		out = append(out, c)
	}
	return out
}
