package event

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/chaz8081/gostt-stream/internal/store"
)

type collector struct {
	mu       sync.Mutex
	payloads []Payload
	err      error
}

func (c *collector) Emit(_ context.Context, p Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, p)
	return c.err
}

func TestPayloadJSON(t *testing.T) {
	data, err := json.Marshal(Data(store.Segment{StartMs: 500, EndMs: 1200, Text: "hello"}))
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	want := `{"status":"data","message":"hello","segment":{"start_ms":500,"end_ms":1200,"text":"hello"}}`
	if got != want {
		t.Errorf("data payload JSON = %s, want %s", got, want)
	}

	data, _ = json.Marshal(Start("ready"))
	if string(data) != `{"status":"start","message":"ready"}` {
		t.Errorf("start payload JSON = %s", data)
	}
}

func TestSegmentNotifierEmitsData(t *testing.T) {
	c := &collector{}
	n := SegmentNotifier{Emitter: c}
	seg := store.Segment{StartMs: 0, EndMs: 500, Text: "first"}

	if err := n.SegmentAdded(context.Background(), seg); err != nil {
		t.Fatalf("SegmentAdded() error = %v", err)
	}
	if len(c.payloads) != 1 {
		t.Fatalf("got %d payloads, want 1", len(c.payloads))
	}
	p := c.payloads[0]
	if p.Status != StatusData || p.Segment == nil || *p.Segment != seg {
		t.Errorf("payload = %+v, want data payload for %+v", p, seg)
	}
}

func TestFanoutDeliversToAllSinks(t *testing.T) {
	a, b := &collector{}, &collector{}
	f := Fanout{a, b}

	for _, p := range []Payload{Start("go"), Data(store.Segment{Text: "x"}), Error("bad")} {
		if err := f.Emit(context.Background(), p); err != nil {
			t.Fatalf("Emit() error = %v", err)
		}
	}

	for name, c := range map[string]*collector{"a": a, "b": b} {
		if len(c.payloads) != 3 {
			t.Fatalf("sink %s got %d payloads, want 3", name, len(c.payloads))
		}
		if c.payloads[0].Status != StatusStart || c.payloads[1].Status != StatusData || c.payloads[2].Status != StatusError {
			t.Errorf("sink %s order = %v", name, c.payloads)
		}
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	failing := &collector{err: ErrUnavailable}
	ok := &collector{}
	err := Fanout{ok, failing}.Emit(context.Background(), Start("go"))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Emit() error = %v, want ErrUnavailable", err)
	}
	if len(ok.payloads) != 1 {
		t.Error("healthy sink should still receive the payload")
	}
}

func TestEmptyFanout(t *testing.T) {
	if err := (Fanout{}).Emit(context.Background(), Start("go")); err != nil {
		t.Errorf("Emit() on empty fanout error = %v", err)
	}
}

func TestLogEmitter(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	e := LogEmitter{Log: log}
	if err := e.Emit(context.Background(), Data(store.Segment{StartMs: 10, EndMs: 20, Text: "spoken"})); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"spoken", "status=data", "start_ms=10", "end_ms=20", "topic=whisper"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}

func TestEmitterFunc(t *testing.T) {
	var got Payload
	f := EmitterFunc(func(_ context.Context, p Payload) error {
		got = p
		return nil
	})
	_ = f.Emit(context.Background(), Error("oops"))
	if got.Status != StatusError || got.Message != "oops" {
		t.Errorf("EmitterFunc received %+v", got)
	}
}
