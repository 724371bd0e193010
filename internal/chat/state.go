package chat

// State is the orchestrator's position in the lifecycle of one user action.
type State int32

const (
	StateIdle State = iota
	StateIngesting
	StateAssembling
	StateAwaitingReply
	StateAppending
	StateIngestFailed
	StateTransportFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateIngesting:
		return "ingesting"
	case StateAssembling:
		return "assembling"
	case StateAwaitingReply:
		return "awaiting_reply"
	case StateAppending:
		return "appending"
	case StateIngestFailed:
		return "ingest_failed"
	case StateTransportFailed:
		return "transport_failed"
	default:
		return "unknown"
	}
}
