package whispercpp

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go"

	"github.com/chaz8081/gostt-stream/internal/audio"
	"github.com/chaz8081/gostt-stream/internal/transcribe"
)

// modelPath resolves the whisper model relative to the project root.
func modelPath(t *testing.T) string {
	t.Helper()
	path := filepath.Join("..", "..", "..", "models", "ggml-base.bin")
	if _, err := os.Stat(path); err != nil {
		t.Skipf("model not found at %s (run 'gostt-stream download-model' first): %v", path, err)
	}
	return path
}

func jfkSamples(t *testing.T) []float32 {
	t.Helper()
	path := filepath.Join("..", "..", "..", "third_party", "whisper.cpp", "samples", "jfk.wav")
	if _, err := os.Stat(path); err != nil {
		t.Skipf("sample not found at %s: %v", path, err)
	}
	clip, err := audio.Load(path)
	if err != nil {
		t.Fatalf("audio.Load(%q): %v", path, err)
	}
	return clip.Mono()
}

func TestLoadBadPath(t *testing.T) {
	_, err := Engine{}.Load("/nonexistent/model.bin")
	if err == nil {
		t.Fatal("Load with bad path should return error")
	}
}

func TestLoadAndClose(t *testing.T) {
	m, err := Engine{}.Load(modelPath(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close() returned error: %v", err)
	}
}

func TestFullJFKStreamsSegments(t *testing.T) {
	path := modelPath(t)
	samples := jfkSamples(t)

	m, err := Engine{}.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer func() { _ = m.Close() }()

	st, err := m.NewState()
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	defer func() { _ = st.Close() }()

	var texts []string
	var lastT1 int64 = -1
	params := transcribe.Params{
		Language: "en",
		UserData: "run-1",
		OnSegment: func(s transcribe.State, userData string) {
			if userData != "run-1" {
				t.Errorf("userData = %q, want %q", userData, "run-1")
			}
			i := s.NumSegments() - 1
			text, ok := s.SegmentText(i)
			if !ok {
				t.Errorf("SegmentText(%d) not available", i)
				return
			}
			if t0 := s.SegmentT0(i); t0 < lastT1 {
				t.Errorf("segment %d starts at %d before previous end %d", i, t0, lastT1)
			}
			lastT1 = s.SegmentT1(i)
			texts = append(texts, string(text))
		},
	}
	if err := st.Full(params, samples); err != nil {
		t.Fatalf("Full: %v", err)
	}

	joined := strings.ToLower(strings.Join(texts, " "))
	if !strings.Contains(joined, "ask not what your country") {
		t.Errorf("expected transcript to contain 'ask not what your country', got: %q", joined)
	}
}

func TestFullSilence(t *testing.T) {
	m, err := Engine{}.Load(modelPath(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer func() { _ = m.Close() }()

	st, err := m.NewState()
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	silence := make([]float32, transcribe.EngineSampleRate)
	if err := st.Full(transcribe.Params{Language: "en"}, silence); err != nil {
		t.Fatalf("Full on silence returned error: %v", err)
	}
}

// fakeDecoder stands in for a whisper context. Full reports segs in the
// given batch sizes, the way whisper.cpp reports new segments per window.
type fakeDecoder struct {
	segs    []fakeSeg
	batches []int
	fullErr error

	produced int
	calls    int
}

type fakeSeg struct {
	t0, t1 int64
	text   string
}

func (d *fakeDecoder) Whisper_lang_id(lang string) int {
	switch lang {
	case "en":
		return 0
	case "ja":
		return 11
	}
	return -1
}

func (d *fakeDecoder) Whisper_full_default_params(whisper.SamplingStrategy) whisper.Params {
	return whisper.Params{}
}

func (d *fakeDecoder) Whisper_full(_ whisper.Params, _ []float32, _ func() bool, newSegment func(int), _ func(int)) error {
	d.calls++
	for _, n := range d.batches {
		d.produced += n
		newSegment(n)
	}
	return d.fullErr
}

func (d *fakeDecoder) Whisper_full_n_segments() int { return d.produced }

func (d *fakeDecoder) Whisper_full_get_segment_text(i int) string { return d.segs[i].text }
func (d *fakeDecoder) Whisper_full_get_segment_t0(i int) int64    { return d.segs[i].t0 }
func (d *fakeDecoder) Whisper_full_get_segment_t1(i int) int64    { return d.segs[i].t1 }

type seenSegment struct {
	startMs, endMs int64
	text           string
}

// collect mirrors the pipeline's callback: read the newest segment and
// convert its ticks to milliseconds.
func collect(seen *[]seenSegment) transcribe.SegmentCallback {
	return func(s transcribe.State, _ string) {
		i := s.NumSegments() - 1
		text, ok := s.SegmentText(i)
		if !ok {
			return
		}
		*seen = append(*seen, seenSegment{
			startMs: s.SegmentT0(i) * transcribe.TicksToMs,
			endMs:   s.SegmentT1(i) * transcribe.TicksToMs,
			text:    string(text),
		})
	}
}

func TestFullReplaysBatchedSegments(t *testing.T) {
	dec := &fakeDecoder{
		segs: []fakeSeg{
			{0, 50, " こんにちは"},
			{50, 120, " 世界"},
			{120, 200, " さようなら "},
		},
		batches: []int{2, 1},
	}
	var seen []seenSegment
	st := newState(dec)
	params := transcribe.Params{Language: "ja", OnSegment: collect(&seen)}
	if err := st.Full(params, make([]float32, 160)); err != nil {
		t.Fatalf("Full: %v", err)
	}

	want := []seenSegment{
		{0, 500, " こんにちは"},
		{500, 1200, " 世界"},
		{1200, 2000, " さようなら "},
	}
	if len(seen) != len(want) {
		t.Fatalf("callback saw %d segments, want %d: %+v", len(seen), len(want), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("segment %d = %+v, want %+v", i, seen[i], want[i])
		}
	}
	if got := st.NumSegments(); got != 3 {
		t.Errorf("NumSegments after Full = %d, want 3", got)
	}
}

func TestFullPassesRawTextBytes(t *testing.T) {
	raw := string([]byte{' ', 0xff, 0xfe})
	dec := &fakeDecoder{segs: []fakeSeg{{10, 20, raw}}, batches: []int{1}}
	st := newState(dec)

	var got []byte
	params := transcribe.Params{
		Language: "en",
		OnSegment: func(s transcribe.State, _ string) {
			got, _ = s.SegmentText(s.NumSegments() - 1)
		},
	}
	if err := st.Full(params, make([]float32, 16)); err != nil {
		t.Fatalf("Full: %v", err)
	}
	if string(got) != raw {
		t.Errorf("SegmentText = %q, want %q", got, raw)
	}
}

func TestSegmentOutOfRange(t *testing.T) {
	st := newState(&fakeDecoder{segs: []fakeSeg{{1, 2, "x"}}})
	if _, ok := st.SegmentText(0); ok {
		t.Error("SegmentText before any decode should report no text")
	}
	if got := st.SegmentT0(-1); got != 0 {
		t.Errorf("SegmentT0(-1) = %d, want 0", got)
	}
	if got := st.SegmentT1(5); got != 0 {
		t.Errorf("SegmentT1(5) = %d, want 0", got)
	}
}

func TestFullRejects(t *testing.T) {
	tests := []struct {
		name    string
		lang    string
		samples []float32
		want    error
	}{
		{"no samples", "en", nil, errNoSamples},
		{"unknown language", "xx", make([]float32, 16), errBadLangTag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := &fakeDecoder{}
			err := newState(dec).Full(transcribe.Params{Language: tt.lang}, tt.samples)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Full error = %v, want %v", err, tt.want)
			}
			if dec.calls != 0 {
				t.Error("decoder should not run")
			}
		})
	}
}

func TestFullSingleUse(t *testing.T) {
	dec := &fakeDecoder{}
	st := newState(dec)
	if err := st.Full(transcribe.Params{Language: "auto"}, make([]float32, 16)); err != nil {
		t.Fatalf("first Full: %v", err)
	}
	if err := st.Full(transcribe.Params{Language: "auto"}, make([]float32, 16)); !errors.Is(err, errStateUsed) {
		t.Fatalf("second Full error = %v, want %v", err, errStateUsed)
	}
	if dec.calls != 1 {
		t.Errorf("decoder ran %d times, want 1", dec.calls)
	}
}

func TestFullDecodeError(t *testing.T) {
	dec := &fakeDecoder{fullErr: whisper.ErrConversionFailed}
	err := newState(dec).Full(transcribe.Params{Language: "en"}, make([]float32, 16))
	if !errors.Is(err, whisper.ErrConversionFailed) {
		t.Fatalf("Full error = %v, want wrapped ErrConversionFailed", err)
	}
}
