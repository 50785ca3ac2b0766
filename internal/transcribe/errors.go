package transcribe

import (
	"errors"

	"github.com/chaz8081/gostt-stream/internal/audio"
	"github.com/chaz8081/gostt-stream/internal/store"
)

// Run failures. Match with errors.Is.
var (
	ErrAudioOpen        = audio.ErrOpen
	ErrAudioDecode      = audio.ErrDecode
	ErrModelLoad        = errors.New("transcribe: model load failed")
	ErrStateInit        = errors.New("transcribe: decode state init failed")
	ErrDecode           = errors.New("transcribe: decode failed")
	ErrStoreUnavailable = store.ErrUnavailable
	ErrEventEmission    = errors.New("transcribe: event emission failed")

	// ErrSegmentText is reported per segment and never fails a run.
	ErrSegmentText = errors.New("transcribe: segment text is not valid UTF-8")
)

// Messages sent to the host in "start" and "error" payloads.
const (
	msgStarted       = "Initialization complete. Starting transcription."
	msgAudioOpen     = "Could not open the specified WAV file."
	msgAudioDecode   = "Failed to read samples from the WAV file."
	msgModelLoad     = "Failed to load the language model."
	msgStateInit     = "Failed to initialize the whisper state."
	msgDecode        = "Failed to run the language model."
	msgStore         = "The transcription settings are unavailable."
	msgSegmentText   = "Text segment could not be converted to string."
	msgSegmentStore  = "A recognized segment could not be stored."
	msgStartEmission = "Failed to send the start event."
)
