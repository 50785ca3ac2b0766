package inject

import (
	"context"
	"errors"
	"testing"

	"github.com/chaz8081/gostt-stream/internal/event"
	"github.com/chaz8081/gostt-stream/internal/store"
)

func fakeInjector(method string) (*Injector, *[]string) {
	var got []string
	inj := NewInjector(method)
	record := func(text string) error {
		got = append(got, text)
		return nil
	}
	inj.typeFn = record
	inj.pasteFn = func(text string) error { return record("paste:" + text) }
	return inj, &got
}

func TestInjectMethod(t *testing.T) {
	tests := []struct {
		method string
		want   string
	}{
		{"type", "hello"},
		{"paste", "paste:hello"},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			inj, got := fakeInjector(tt.method)
			if err := inj.Inject("hello"); err != nil {
				t.Fatal(err)
			}
			if len(*got) != 1 || (*got)[0] != tt.want {
				t.Errorf("injected %v, want [%s]", *got, tt.want)
			}
		})
	}
}

func TestInjectEmptyIsNoop(t *testing.T) {
	inj, got := fakeInjector("type")
	if err := inj.Inject(""); err != nil {
		t.Fatal(err)
	}
	if len(*got) != 0 {
		t.Errorf("injected %v for empty text", *got)
	}
}

func TestSinkInjectsDataOnly(t *testing.T) {
	inj, got := fakeInjector("type")
	sink := NewSink(inj)
	ctx := context.Background()

	payloads := []event.Payload{
		event.Start("ready"),
		event.Data(store.Segment{Text: " こんにちは"}),
		event.Error("oops"),
		event.Data(store.Segment{Text: "   "}),
		event.Data(store.Segment{Text: " 世界"}),
		event.Start("next run"),
		event.Data(store.Segment{Text: " again"}),
	}
	for _, p := range payloads {
		if err := sink.Emit(ctx, p); err != nil {
			t.Fatalf("Emit(%v) error = %v", p.Status, err)
		}
	}

	want := []string{"こんにちは", " 世界", "again"}
	if len(*got) != len(want) {
		t.Fatalf("injected %q, want %q", *got, want)
	}
	for i := range want {
		if (*got)[i] != want[i] {
			t.Errorf("injected[%d] = %q, want %q", i, (*got)[i], want[i])
		}
	}
}

func TestSinkPropagatesError(t *testing.T) {
	inj := NewInjector("type")
	boom := errors.New("no display")
	inj.typeFn = func(string) error { return boom }

	err := NewSink(inj).Emit(context.Background(), event.Data(store.Segment{Text: "x"}))
	if !errors.Is(err, boom) {
		t.Errorf("Emit() error = %v, want %v", err, boom)
	}
}
