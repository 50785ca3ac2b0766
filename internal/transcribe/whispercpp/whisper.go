// Package whispercpp adapts the low-level whisper.cpp Go bindings to the
// transcribe.Engine interface.
package whispercpp

import (
	"errors"
	"fmt"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go"

	"github.com/chaz8081/gostt-stream/internal/transcribe"
)

// langAuto asks whisper.cpp to detect the spoken language.
const langAuto = "auto"

var (
	errStateUsed  = errors.New("whispercpp: decode state already used")
	errNoSamples  = errors.New("whispercpp: no samples to decode")
	errBadLangTag = errors.New("whispercpp: unknown language")
)

// decoder is the part of *whisper.Context a decode uses.
type decoder interface {
	Whisper_lang_id(lang string) int
	Whisper_full_default_params(strategy whisper.SamplingStrategy) whisper.Params
	Whisper_full(params whisper.Params, samples []float32,
		encoderBegin func() bool, newSegment func(int), progress func(int)) error
	Whisper_full_n_segments() int
	Whisper_full_get_segment_text(segment int) string
	Whisper_full_get_segment_t0(segment int) int64
	Whisper_full_get_segment_t1(segment int) int64
}

var _ decoder = (*whisper.Context)(nil)

// Engine loads whisper.cpp models from disk.
type Engine struct{}

var _ transcribe.Engine = Engine{}

// Load reads a ggml model file. The caller must Close the returned model.
func (Engine) Load(modelPath string) (transcribe.Model, error) {
	ctx := whisper.Whisper_init(modelPath)
	if ctx == nil {
		return nil, fmt.Errorf("whispercpp: load model %q", modelPath)
	}
	return &Model{ctx: ctx}, nil
}

// Model owns a whisper context. The context also carries the decode state,
// so a model hands out one State per run.
type Model struct {
	mu  sync.Mutex
	ctx *whisper.Context
}

// NewState returns the decode state for the next run.
func (m *Model) NewState() (transcribe.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return nil, errors.New("whispercpp: model closed")
	}
	return newState(m.ctx), nil
}

// Close frees the context. It is safe to call more than once.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx != nil {
		m.ctx.Whisper_free()
		m.ctx = nil
	}
	return nil
}

// State runs a single decode and exposes its segments by index.
//
// whisper.cpp reports new segments in batches. State replays each batch
// one segment at a time: during the n-th replay NumSegments reports only the
// segments up to and including that one, so a callback that reads the newest
// segment sees every segment exactly once.
type State struct {
	dec decoder

	mu      sync.Mutex
	used    bool
	visible int
}

func newState(dec decoder) *State {
	return &State{dec: dec}
}

// Full applies params and decodes samples, invoking params.OnSegment once
// for every new segment.
func (s *State) Full(params transcribe.Params, samples []float32) error {
	s.mu.Lock()
	if s.used {
		s.mu.Unlock()
		return errStateUsed
	}
	s.used = true
	s.mu.Unlock()

	if len(samples) == 0 {
		return errNoSamples
	}

	wp, err := s.params(params)
	if err != nil {
		return err
	}

	onNew := func(n int) {
		total := s.dec.Whisper_full_n_segments()
		for i := total - n; i < total; i++ {
			s.mu.Lock()
			s.visible = i + 1
			s.mu.Unlock()
			if params.OnSegment != nil {
				params.OnSegment(s, params.UserData)
			}
		}
	}

	if err := s.dec.Whisper_full(wp, samples, nil, onNew, nil); err != nil {
		return fmt.Errorf("whispercpp: full: %w", err)
	}

	s.mu.Lock()
	s.visible = s.dec.Whisper_full_n_segments()
	s.mu.Unlock()
	return nil
}

// params converts decode params to whisper.cpp's. The bindings expose no
// setters for best_of, tinydiarize or non-speech suppression; those keep
// whisper.cpp's defaults.
func (s *State) params(p transcribe.Params) (whisper.Params, error) {
	strategy := whisper.SAMPLING_GREEDY
	if p.Strategy == transcribe.SamplingBeamSearch {
		strategy = whisper.SAMPLING_BEAM_SEARCH
	}
	wp := s.dec.Whisper_full_default_params(strategy)

	lang := -1
	if p.Language != "" && p.Language != langAuto {
		if lang = s.dec.Whisper_lang_id(p.Language); lang < 0 {
			return wp, fmt.Errorf("%w %q", errBadLangTag, p.Language)
		}
	}
	if err := wp.SetLanguage(lang); err != nil {
		return wp, fmt.Errorf("whispercpp: set language %q: %w", p.Language, err)
	}
	wp.SetTranslate(p.Translate)
	wp.SetOffset(p.OffsetMs)
	wp.SetDuration(p.DurationMs)
	if p.Threads > 0 {
		wp.SetThreads(int(p.Threads))
	}
	wp.SetPrintProgress(false)
	wp.SetPrintRealtime(false)
	wp.SetPrintTimestamps(false)
	return wp, nil
}

// NumSegments returns the number of segments the current callback may read.
func (s *State) NumSegments() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

func (s *State) inRange(i int) bool {
	return i >= 0 && i < s.NumSegments()
}

// SegmentText returns the text bytes of segment i exactly as whisper.cpp
// produced them, leading space included.
func (s *State) SegmentText(i int) ([]byte, bool) {
	if !s.inRange(i) {
		return nil, false
	}
	return []byte(s.dec.Whisper_full_get_segment_text(i)), true
}

// SegmentT0 returns the start of segment i in engine ticks.
func (s *State) SegmentT0(i int) int64 {
	if !s.inRange(i) {
		return 0
	}
	return s.dec.Whisper_full_get_segment_t0(i)
}

// SegmentT1 returns the end of segment i in engine ticks.
func (s *State) SegmentT1(i int) int64 {
	if !s.inRange(i) {
		return 0
	}
	return s.dec.Whisper_full_get_segment_t1(i)
}

// Close is a no-op; the state lives inside the model's context.
func (s *State) Close() error { return nil }
