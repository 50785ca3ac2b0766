// Package audio loads 16-bit PCM WAV files for transcription and captures
// microphone audio into the same format.
package audio

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

var (
	// ErrOpen reports a file that cannot be opened or is not a readable WAV container.
	ErrOpen = errors.New("audio: open failed")
	// ErrDecode reports a WAV whose samples could not be fully decoded.
	ErrDecode = errors.New("audio: decode failed")
)

const (
	wavFormatPCM   = 1
	pcmBitDepth    = 16
	maxSampleValue = 32767 // largest positive int16
)

// Clip is a decoded WAV file. Samples are interleaved when Channels > 1.
type Clip struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float64 {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.Channels) / float64(c.SampleRate)
}

// Mono down-mixes the clip to a single channel by averaging each frame.
// A mono clip returns its own samples.
func (c *Clip) Mono() []float32 {
	if c.Channels <= 1 {
		return c.Samples
	}
	frames := len(c.Samples) / c.Channels
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range c.Channels {
			sum += c.Samples[i*c.Channels+ch]
		}
		mono[i] = sum / float32(c.Channels)
	}
	return mono
}

// Load opens a 16-bit signed PCM WAV file and returns its samples normalised
// to [-1.0, 1.0]. Decoding is all-or-nothing: on error no samples are returned.
func Load(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %s is not a WAV file", ErrOpen, path)
	}

	if dec.WavAudioFormat != wavFormatPCM || dec.BitDepth != pcmBitDepth {
		return nil, fmt.Errorf("%w: %s: unsupported sample format (format %d, %d-bit), want 16-bit PCM",
			ErrDecode, path, dec.WavAudioFormat, dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}

	// A short read ends with EOF inside the data chunk instead of an error.
	if want := dec.PCMLen() / (pcmBitDepth / 8); int64(len(buf.Data)) < want {
		return nil, fmt.Errorf("%w: %s: truncated data chunk (%d of %d samples)",
			ErrDecode, path, len(buf.Data), want)
	}

	samples := make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = normalize(s)
	}

	return &Clip{
		Samples:    samples,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}, nil
}

// normalize scales an int16 sample by the largest positive int16. The most
// negative sample would land just below -1 and is clamped.
func normalize(s int) float32 {
	v := float32(s) / maxSampleValue
	if v < -1 {
		return -1
	}
	return v
}
