package store

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type recordingNotifier struct {
	mu   sync.Mutex
	segs []Segment
	err  error
	boom bool
}

func (n *recordingNotifier) SegmentAdded(_ context.Context, seg Segment) error {
	if n.boom {
		panic("listener exploded")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.segs = append(n.segs, seg)
	return n.err
}

func TestConfigureAndAccessors(t *testing.T) {
	s := New(nil)
	req := Request{
		AudioPath:  "/tmp/in.wav",
		ModelPath:  "/tmp/model.bin",
		Language:   "en",
		Translate:  true,
		OffsetMs:   250,
		DurationMs: 9000,
	}
	if err := s.Configure(req); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}

	got, err := s.Request()
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if got != req {
		t.Errorf("Request() = %+v, want %+v", got, req)
	}

	if p, _ := s.AudioPath(); p != req.AudioPath {
		t.Errorf("AudioPath() = %q", p)
	}
	if p, _ := s.ModelPath(); p != req.ModelPath {
		t.Errorf("ModelPath() = %q", p)
	}
	if lang, ok, _ := s.Language(); lang != "en" || !ok {
		t.Errorf("Language() = %q, %v", lang, ok)
	}
	if tr, _ := s.Translate(); !tr {
		t.Error("Translate() = false")
	}
	if off, _ := s.OffsetMs(); off != 250 {
		t.Errorf("OffsetMs() = %d", off)
	}
	if dur, _ := s.DurationMs(); dur != 9000 {
		t.Errorf("DurationMs() = %d", dur)
	}
}

func TestLanguageUnset(t *testing.T) {
	s := New(nil)
	if _, ok, err := s.Language(); ok || err != nil {
		t.Errorf("Language() on empty store = ok %v, err %v", ok, err)
	}
}

func TestAppendSegmentNotifiesInOrder(t *testing.T) {
	n := &recordingNotifier{}
	s := New(n)
	ctx := context.Background()

	want := []Segment{
		{StartMs: 0, EndMs: 500, Text: "one"},
		{StartMs: 500, EndMs: 1200, Text: "two"},
		{StartMs: 1200, EndMs: 2000, Text: "three"},
	}
	for _, seg := range want {
		if err := s.AppendSegment(ctx, seg); err != nil {
			t.Fatalf("AppendSegment() error = %v", err)
		}
	}

	got, err := s.Segments()
	if err != nil {
		t.Fatalf("Segments() error = %v", err)
	}
	if len(got) != len(want) || len(n.segs) != len(want) {
		t.Fatalf("stored %d, notified %d, want %d", len(got), len(n.segs), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("stored[%d] = %+v, want %+v", i, got[i], want[i])
		}
		if n.segs[i] != want[i] {
			t.Errorf("notified[%d] = %+v, want %+v", i, n.segs[i], want[i])
		}
	}
}

func TestAppendSegmentKeepsSegmentWhenNotifyFails(t *testing.T) {
	sinkErr := errors.New("sink down")
	s := New(&recordingNotifier{err: sinkErr})

	err := s.AppendSegment(context.Background(), Segment{Text: "kept"})
	if !errors.Is(err, sinkErr) {
		t.Fatalf("AppendSegment() error = %v, want %v", err, sinkErr)
	}
	if n, _ := s.Len(); n != 1 {
		t.Errorf("Len() = %d, want 1", n)
	}
}

func TestConfigureResetsSegments(t *testing.T) {
	s := New(nil)
	_ = s.AppendSegment(context.Background(), Segment{Text: "old"})
	if err := s.Configure(Request{AudioPath: "next.wav"}); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Len(); n != 0 {
		t.Errorf("Len() after Configure = %d, want 0", n)
	}
}

func TestSegmentsReturnsCopy(t *testing.T) {
	s := New(nil)
	_ = s.AppendSegment(context.Background(), Segment{Text: "original"})
	segs, _ := s.Segments()
	segs[0].Text = "mutated"
	again, _ := s.Segments()
	if again[0].Text != "original" {
		t.Errorf("Segments() exposed internal slice, got %q", again[0].Text)
	}
}

func TestPanicPoisonsStore(t *testing.T) {
	n := &recordingNotifier{boom: true}
	s := New(n)

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic to propagate out of AppendSegment")
			}
		}()
		_ = s.AppendSegment(context.Background(), Segment{Text: "boom"})
	}()

	if _, err := s.Request(); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Request() after panic error = %v, want ErrUnavailable", err)
	}
	if err := s.Configure(Request{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Configure() after panic error = %v, want ErrUnavailable", err)
	}
	n.boom = false
	if err := s.AppendSegment(context.Background(), Segment{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("AppendSegment() after panic error = %v, want ErrUnavailable", err)
	}
}

func TestConcurrentAppend(t *testing.T) {
	s := New(&recordingNotifier{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.AppendSegment(ctx, Segment{StartMs: int64(i)})
			_, _ = s.Request()
		}(i)
	}
	wg.Wait()

	if n, _ := s.Len(); n != 50 {
		t.Errorf("Len() = %d, want 50", n)
	}
}

func TestLanguageOrDefault(t *testing.T) {
	if got := (Request{}).LanguageOrDefault(); got != "ja" {
		t.Errorf("LanguageOrDefault() = %q, want %q", got, "ja")
	}
	if got := (Request{Language: "de"}).LanguageOrDefault(); got != "de" {
		t.Errorf("LanguageOrDefault() = %q, want %q", got, "de")
	}
}
