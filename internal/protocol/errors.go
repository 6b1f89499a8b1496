package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Relay state.
	ErrHistoryTruncated = "E_HISTORY_TRUNCATED"
	ErrSlowConsumer     = "E_SLOW_CONSUMER"
	ErrBadCommand       = "E_BAD_COMMAND"
	ErrInternal         = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:  {},
	ErrProtoVersion:     {},
	ErrHistoryTruncated: {},
	ErrSlowConsumer:     {},
	ErrBadCommand:       {},
	ErrInternal:         {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

func NewErrorMsg(code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: msg}
}
