package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	MaxQueue        int    `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	TickRateHz      int    `json:"tick_rate_hz"`
	SendDelayTicks  int    `json:"send_delay_ticks"`
	// StartTick is the first tick the server will broadcast live; every earlier
	// bundle is replayed as catch-up right after WELCOME.
	StartTick uint64 `json:"start_tick"`
}

// INPUT (client -> server): local commands addressed to a future tick.
type InputMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Tick            uint64         `json:"tick"`
	Commands        []InputCommand `json:"commands"`
}

// BUNDLE (server -> client): authoritative input for one tick.
type BundleMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Tick            uint64         `json:"tick"`
	Commands        []InputCommand `json:"commands"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewBundleMsg(b TickBundle) BundleMsg {
	cmds := b.Commands
	if cmds == nil {
		cmds = []InputCommand{}
	}
	return BundleMsg{Type: TypeBundle, ProtocolVersion: Version, Tick: b.Tick, Commands: cmds}
}

func (m BundleMsg) Bundle() TickBundle {
	return TickBundle{Tick: m.Tick, Commands: m.Commands}
}

func NewInputMsg(tick uint64, cmds []InputCommand) InputMsg {
	if cmds == nil {
		cmds = []InputCommand{}
	}
	return InputMsg{Type: TypeInput, ProtocolVersion: Version, Tick: tick, Commands: cmds}
}
