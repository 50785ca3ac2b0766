// Package hotkey provides a global push-to-talk trigger using gohook.
// It supports "hold" mode (press to start, release to stop) and
// "toggle" mode (press to start, press again to stop).
package hotkey

import (
	"fmt"
	"strings"
	"sync"

	hook "github.com/robotn/gohook"
)

// EventType indicates whether recording should start or stop.
type EventType int

const (
	// EventStart signals that the hotkey was activated (start recording).
	EventStart EventType = iota
	// EventStop signals that the hotkey was deactivated (stop recording).
	EventStop
)

// Event is emitted on the channel returned by Events.
type Event struct {
	Type EventType
}

// Mode selects how key presses map to start/stop.
type Mode string

const (
	ModeHold   Mode = "hold"
	ModeToggle Mode = "toggle"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeHold, ModeToggle:
		return m, nil
	default:
		return "", fmt.Errorf("hotkey: mode must be %q or %q, got %q", ModeHold, ModeToggle, s)
	}
}

// ParseCombo splits a combo such as "Ctrl+Shift+R" into lowercase gohook
// key names.
func ParseCombo(combo string) ([]string, error) {
	if strings.TrimSpace(combo) == "" {
		return nil, fmt.Errorf("hotkey: empty key combo")
	}
	parts := strings.Split(combo, "+")
	keys := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		k := strings.ToLower(strings.TrimSpace(p))
		if k == "" {
			return nil, fmt.Errorf("hotkey: empty key in combo %q", combo)
		}
		if seen[k] {
			return nil, fmt.Errorf("hotkey: key %q repeated in combo %q", k, combo)
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys, nil
}

// trigger turns raw combo transitions into start/stop events. Auto-repeat
// key-downs while the combo is held are ignored.
type trigger struct {
	mode Mode

	mu     sync.Mutex
	held   bool
	active bool
}

func (t *trigger) keyDown() (Event, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.held {
		return Event{}, false
	}
	t.held = true
	if t.mode == ModeToggle && t.active {
		t.active = false
		return Event{Type: EventStop}, true
	}
	if t.active {
		return Event{}, false
	}
	t.active = true
	return Event{Type: EventStart}, true
}

func (t *trigger) keyUp() (Event, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.held = false
	if t.mode == ModeHold && t.active {
		t.active = false
		return Event{Type: EventStop}, true
	}
	return Event{}, false
}

// Listener manages a global hotkey and emits start/stop events.
type Listener struct {
	keys []string
	trig *trigger
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// NewListener creates a Listener for the given key combo and mode.
// keys should be lowercase key names (see ParseCombo).
func NewListener(keys []string, mode Mode) *Listener {
	return &Listener{
		keys: keys,
		trig: &trigger{mode: mode},
		ch:   make(chan Event, 16),
		done: make(chan struct{}),
	}
}

// Events returns the channel that receives hotkey events.
// The channel is closed when the listener stops.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

func (l *Listener) send(ev Event, ok bool) {
	if !ok {
		return
	}
	select {
	case l.ch <- ev:
	default: // don't block the hook thread if nobody is reading
	}
}

// Start begins listening for the global hotkey.
// This function blocks until Stop is called. Run it in a goroutine.
func (l *Listener) Start() {
	hook.Register(hook.KeyDown, l.keys, func(hook.Event) {
		l.send(l.trig.keyDown())
	})
	hook.Register(hook.KeyUp, l.keys, func(hook.Event) {
		l.send(l.trig.keyUp())
	})

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

// Stop terminates the hotkey listener.
// It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}
