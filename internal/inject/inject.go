// Package inject types recognized segments into the focused application
// using robotgo keystroke simulation or a clipboard paste.
package inject

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/go-vgo/robotgo"

	"github.com/chaz8081/gostt-stream/internal/event"
)

// Injector sends text to the active application.
type Injector struct {
	method string // "type" or "paste"

	// typeFn and pasteFn are replaced in tests.
	typeFn  func(text string) error
	pasteFn func(text string) error
}

// NewInjector creates an Injector with the given method.
// method must be "type" (keystroke simulation) or "paste" (clipboard).
func NewInjector(method string) *Injector {
	return &Injector{method: method, typeFn: typeText, pasteFn: paste}
}

// Inject sends text using the configured method.
func (inj *Injector) Inject(text string) error {
	if text == "" {
		return nil
	}
	if inj.method == "paste" {
		return inj.pasteFn(text)
	}
	return inj.typeFn(text)
}

// typeText simulates individual keystrokes. Preserves clipboard contents
// but is slower for long text.
func typeText(text string) error {
	robotgo.Type(text)
	return nil
}

// paste copies text to the clipboard and presses the platform paste chord,
// then restores the previous clipboard.
func paste(text string) error {
	prev, _ := robotgo.ReadAll()

	if err := robotgo.WriteAll(text); err != nil {
		return fmt.Errorf("inject: write to clipboard: %w", err)
	}

	mod := "ctrl"
	if runtime.GOOS == "darwin" {
		mod = "cmd"
	}
	if err := robotgo.KeyTap("v", mod); err != nil {
		return fmt.Errorf("inject: key tap %s+v: %w", mod, err)
	}

	_ = robotgo.WriteAll(prev)
	return nil
}

// Sink is an event.Emitter that injects the text of every data payload.
// Segments after the first are separated by a single space.
type Sink struct {
	inj *Injector

	mu      sync.Mutex
	started bool
}

var _ event.Emitter = (*Sink)(nil)

// NewSink wraps inj as an event sink.
func NewSink(inj *Injector) *Sink {
	return &Sink{inj: inj}
}

// Emit injects data payloads and ignores everything else. A start payload
// resets spacing for the next run.
func (s *Sink) Emit(_ context.Context, p event.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch p.Status {
	case event.StatusStart:
		s.started = false
		return nil
	case event.StatusData:
	default:
		return nil
	}

	text := strings.TrimSpace(p.Message)
	if text == "" {
		return nil
	}
	if s.started {
		text = " " + text
	}
	if err := s.inj.Inject(text); err != nil {
		return err
	}
	s.started = true
	return nil
}
