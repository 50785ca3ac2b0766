package transcribe

// Engine loads recognition models. Implementations wrap a speech engine such
// as whisper.cpp; the pipeline never touches the engine directly.
type Engine interface {
	// Load creates a recognition context from a model file.
	Load(modelPath string) (Model, error)
}

// Model is a loaded recognition context.
type Model interface {
	// NewState allocates the mutable state for exactly one decode.
	NewState() (State, error)
	Close() error
}

// SegmentCallback is invoked by State.Full from inside the decode loop, once
// per finalized segment and never after Full returns. userData is the value
// given in Params.UserData.
type SegmentCallback func(state State, userData string)

// State is single-use decode state. Segment accessors read what the current
// decode has produced so far.
type State interface {
	// Full decodes samples (mono, 16 kHz float32) and blocks until done.
	Full(params Params, samples []float32) error
	// NumSegments returns how many segments have been finalized.
	NumSegments() int
	// SegmentText returns the raw text bytes of segment i; ok is false when
	// the engine has no text for it.
	SegmentText(i int) (text []byte, ok bool)
	// SegmentT0 and SegmentT1 return segment bounds in engine ticks.
	SegmentT0(i int) int64
	SegmentT1(i int) int64
	Close() error
}

// SamplingStrategy selects the token decoder.
type SamplingStrategy int

const (
	SamplingGreedy SamplingStrategy = iota
	SamplingBeamSearch
)

// Params configures one decode.
type Params struct {
	Strategy   SamplingStrategy
	BestOf     int
	Language   string
	Translate  bool
	OffsetMs   int
	DurationMs int
	Threads    uint

	// SpeakerTurns enables tinydiarize speaker-turn tagging.
	SpeakerTurns bool
	// SuppressNonSpeech suppresses non-speech tokens.
	SuppressNonSpeech bool

	OnSegment SegmentCallback
	UserData  string
}

// TicksToMs converts engine timestamps to milliseconds. whisper.cpp reports
// segment bounds in 10 ms ticks; the factor is part of the engine ABI.
const TicksToMs = 10
