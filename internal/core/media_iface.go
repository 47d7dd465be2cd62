package core

// StreamKind selects one of the unreliable media relays.
type StreamKind int

const (
	StreamVideo StreamKind = iota
	StreamAudio

	streamKinds
)

// StreamKinds is the number of media relays a session can learn endpoints for.
const StreamKinds = int(streamKinds)

func (k StreamKind) String() string {
	switch k {
	case StreamVideo:
		return "video"
	case StreamAudio:
		return "audio"
	default:
		return "unknown"
	}
}

func (k StreamKind) Valid() bool { return k >= 0 && k < streamKinds }
