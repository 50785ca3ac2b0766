// Package event delivers run notifications to the host application.
//
// Every transport carries the same JSON [Payload]. A run produces one
// "start" payload, one "data" payload per stored segment, and "error"
// payloads for failures.
package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/chaz8081/gostt-stream/internal/store"
)

// Topic is the event name front ends subscribe to.
const Topic = "whisper"

// Status classifies a payload.
type Status string

const (
	StatusStart Status = "start"
	StatusData  Status = "data"
	StatusError Status = "error"
)

// ErrUnavailable reports a transport that cannot currently deliver events.
var ErrUnavailable = errors.New("event: transport unavailable")

// Payload is the notification envelope sent to the host.
type Payload struct {
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Segment *store.Segment `json:"segment,omitempty"`
}

// Start builds a "start" payload.
func Start(msg string) Payload { return Payload{Status: StatusStart, Message: msg} }

// Error builds an "error" payload.
func Error(msg string) Payload { return Payload{Status: StatusError, Message: msg} }

// Data builds a "data" payload carrying seg.
func Data(seg store.Segment) Payload {
	return Payload{Status: StatusData, Message: seg.Text, Segment: &seg}
}

// Emitter sends payloads to the host application.
type Emitter interface {
	Emit(ctx context.Context, p Payload) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, p Payload) error

// Emit calls f.
func (f EmitterFunc) Emit(ctx context.Context, p Payload) error { return f(ctx, p) }

// SegmentNotifier turns stored segments into "data" payloads. It satisfies
// store.Notifier.
type SegmentNotifier struct {
	Emitter Emitter
}

// SegmentAdded emits seg as a data payload.
func (n SegmentNotifier) SegmentAdded(ctx context.Context, seg store.Segment) error {
	return n.Emitter.Emit(ctx, Data(seg))
}

var _ store.Notifier = SegmentNotifier{}

// LogEmitter writes every payload to a structured logger.
type LogEmitter struct {
	Log *slog.Logger
}

// Emit logs p. It never fails.
func (e LogEmitter) Emit(ctx context.Context, p Payload) error {
	attrs := []slog.Attr{
		slog.String("topic", Topic),
		slog.String("status", string(p.Status)),
	}
	if p.Segment != nil {
		attrs = append(attrs,
			slog.Int64("start_ms", p.Segment.StartMs),
			slog.Int64("end_ms", p.Segment.EndMs),
		)
	}
	level := slog.LevelInfo
	if p.Status == StatusError {
		level = slog.LevelWarn
	}
	e.Log.LogAttrs(ctx, level, p.Message, attrs...)
	return nil
}

// Fanout delivers each payload to every sink concurrently and waits for all
// of them. Each sink still sees payloads in emission order because Emit
// returns only after every sink has finished.
type Fanout []Emitter

// Emit sends p to all sinks and joins their errors.
func (f Fanout) Emit(ctx context.Context, p Payload) error {
	var g errgroup.Group
	errs := make([]error, len(f))
	for i, sink := range f {
		g.Go(func() error {
			if err := sink.Emit(ctx, p); err != nil {
				errs[i] = fmt.Errorf("sink %d: %w", i, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
