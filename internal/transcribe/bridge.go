package transcribe

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/chaz8081/gostt-stream/internal/event"
	"github.com/chaz8081/gostt-stream/internal/store"
)

// missingHandle is the panic value raised when the engine calls back with a
// run id that has no registered handle. The decode goroutine lets it through.
type missingHandle string

func (m missingHandle) String() string {
	return fmt.Sprintf("transcribe: segment callback for unknown run %q", string(m))
}

// onSegment is the engine's new-segment callback. It runs on the decode
// goroutine, converts the newest segment and hands it to the run's store.
// Failures here are reported to the host and never abort the decode.
func (p *Pipeline) onSegment(state State, runID string) {
	h, ok := p.runs.borrow(runID)
	if !ok {
		panic(missingHandle(runID))
	}

	i := state.NumSegments() - 1
	if i < 0 {
		return
	}

	raw, ok := state.SegmentText(i)
	if !ok || !utf8.Valid(raw) {
		h.dropped()
		p.metrics.SegmentDropped(h.ctx, "text")
		h.log.Warn("dropping segment", "index", i, "error", ErrSegmentText)
		if err := h.emitter.Emit(h.ctx, event.Error(msgSegmentText)); err != nil {
			h.log.Debug("error event not delivered", "error", err)
		}
		return
	}

	seg := store.Segment{
		StartMs: state.SegmentT0(i) * TicksToMs,
		EndMs:   state.SegmentT1(i) * TicksToMs,
		Text:    string(raw),
	}

	err := h.store.AppendSegment(h.ctx, seg)
	switch {
	case err == nil:
		h.kept()
		p.metrics.SegmentStored(h.ctx)
	case errors.Is(err, store.ErrUnavailable):
		h.dropped()
		p.metrics.SegmentDropped(h.ctx, "store")
		h.log.Error("segment not stored", "index", i, "error", err)
		if err := h.emitter.Emit(h.ctx, event.Error(msgSegmentStore)); err != nil {
			h.log.Debug("error event not delivered", "error", err)
		}
	default:
		// Stored, but the data event did not reach every sink.
		h.kept()
		p.metrics.SegmentStored(h.ctx)
		h.log.Warn("data event not delivered", "index", i, "error", err)
	}
}
