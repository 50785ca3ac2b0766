// Package transcribe runs offline speech recognition over a WAV file and
// streams every recognized segment to a store and the host's event sinks.
//
// A run moves through Idle, Configured, Running and ends in Completed or
// Failed. The engine reports segments through a callback that only carries
// a run id; the pipeline resolves that id to the run's store and emitter.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/gostt-stream/internal/archive"
	"github.com/chaz8081/gostt-stream/internal/audio"
	"github.com/chaz8081/gostt-stream/internal/event"
	"github.com/chaz8081/gostt-stream/internal/observe"
	"github.com/chaz8081/gostt-stream/internal/store"
)

// EngineSampleRate is the input rate the engine expects.
const EngineSampleRate = 16000

// RunState is the lifecycle position of a pipeline.
type RunState int

const (
	StateIdle RunState = iota
	StateConfigured
	StateRunning
	StateCompleted
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

// Archive persists finished runs.
type Archive interface {
	SaveRun(ctx context.Context, run archive.Run) error
}

type runIDKey struct{}

// WithRunID returns a context that makes Run use id instead of generating
// one. Callers use it to hand out an id before the run starts.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// Result summarizes a finished run.
type Result struct {
	RunID    string
	State    RunState
	Segments []store.Segment
	Dropped  int
	Elapsed  time.Duration
}

// Pipeline executes transcription runs one at a time.
type Pipeline struct {
	engine  Engine
	emitter event.Emitter
	log     *slog.Logger
	metrics *observe.Metrics
	archive Archive
	threads uint
	newID   func() string
	now     func() time.Time

	runMu sync.Mutex
	runs  *registry

	stateMu sync.Mutex
	state   RunState
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics records run and segment metrics.
func WithMetrics(m *observe.Metrics) Option { return func(p *Pipeline) { p.metrics = m } }

// WithArchive saves every finished run.
func WithArchive(a Archive) Option { return func(p *Pipeline) { p.archive = a } }

// WithThreads sets the decoder thread count. 0 leaves the engine default.
func WithThreads(n uint) Option { return func(p *Pipeline) { p.threads = n } }

// New creates a pipeline. emitter receives start and error events; data
// events flow through the store returned by NewStore.
func New(engine Engine, emitter event.Emitter, log *slog.Logger, opts ...Option) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	p := &Pipeline{
		engine:  engine,
		emitter: emitter,
		log:     log,
		newID:   uuid.NewString,
		now:     time.Now,
		runs:    newRegistry(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewStore returns an empty store whose segments are emitted as data events
// through the pipeline's emitter.
func (p *Pipeline) NewStore() *store.Store {
	return store.New(event.SegmentNotifier{Emitter: p.emitter})
}

// State returns the current lifecycle state.
func (p *Pipeline) State() RunState {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.state
}

func (p *Pipeline) setState(s RunState) {
	p.stateMu.Lock()
	p.state = s
	p.stateMu.Unlock()
}

// Run transcribes the audio named by st's request. Segments are appended to
// st as the engine finalizes them. Concurrent calls are serialized.
//
// The returned error matches one of the package's Err values; a start event
// is emitted at most once and only after the model and state are ready.
func (p *Pipeline) Run(ctx context.Context, st *store.Store) (Result, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	started := p.now()
	id, _ := ctx.Value(runIDKey{}).(string)
	if id == "" {
		id = p.newID()
	}
	res := Result{RunID: id, State: StateIdle}
	p.setState(StateIdle)
	log := p.log.With("run", res.RunID)

	req, err := st.Request()
	if err == nil {
		err = p.run(ctx, log, st, req, &res)
	} else {
		err = p.fail(ctx, log, msgStore, fmt.Errorf("transcribe: read request: %w", err))
	}

	if err != nil {
		res.State = StateFailed
	} else {
		res.State = StateCompleted
	}
	p.setState(res.State)
	res.Elapsed = p.now().Sub(started)
	if segs, segErr := st.Segments(); segErr == nil {
		res.Segments = segs
	}

	p.metrics.RunFinished(ctx, res.State.String(), res.Elapsed)
	p.save(ctx, log, req, res, started, err)

	if err != nil {
		log.Error("transcription failed", "error", err, "elapsed", res.Elapsed)
	} else {
		log.Info("transcription complete",
			"segments", len(res.Segments),
			"dropped", res.Dropped,
			"elapsed", res.Elapsed,
		)
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, log *slog.Logger, st *store.Store, req store.Request, res *Result) error {
	clip, err := audio.Load(req.AudioPath)
	if err != nil {
		msg := msgAudioDecode
		if errors.Is(err, audio.ErrOpen) {
			msg = msgAudioOpen
		}
		return p.fail(ctx, log, msg, fmt.Errorf("transcribe: %w", err))
	}
	if clip.SampleRate != EngineSampleRate {
		log.Warn("audio is not 16 kHz; timestamps and accuracy will be off",
			"sample_rate", clip.SampleRate)
	}
	samples := clip.Mono()
	if len(samples) == 0 {
		return p.fail(ctx, log, msgAudioDecode, fmt.Errorf("%w: %s holds no complete frames", ErrAudioDecode, req.AudioPath))
	}
	p.metrics.AudioLoaded(ctx, clip.Duration())
	log.Debug("audio loaded", "path", req.AudioPath, "samples", len(samples), "channels", clip.Channels)

	model, err := p.engine.Load(req.ModelPath)
	if err != nil {
		return p.fail(ctx, log, msgModelLoad, fmt.Errorf("%w: %s: %w", ErrModelLoad, req.ModelPath, err))
	}
	defer closeQuietly(log, "model", model)
	p.setState(StateConfigured)

	state, err := model.NewState()
	if err != nil {
		return p.fail(ctx, log, msgStateInit, fmt.Errorf("%w: %w", ErrStateInit, err))
	}
	defer closeQuietly(log, "state", state)

	h := &runHandle{id: res.RunID, ctx: ctx, store: st, emitter: p.emitter, log: log}
	p.runs.register(h)
	defer func() {
		if !p.runs.release(h.id) {
			log.Error("run handle released twice")
		}
		_, res.Dropped = h.counts()
	}()

	if err := p.emitter.Emit(ctx, event.Start(msgStarted)); err != nil {
		return p.fail(ctx, log, msgStartEmission, fmt.Errorf("%w: start: %w", ErrEventEmission, err))
	}

	params := Params{
		Strategy:          SamplingGreedy,
		BestOf:            1,
		Language:          req.LanguageOrDefault(),
		Translate:         req.Translate,
		OffsetMs:          req.OffsetMs,
		DurationMs:        req.DurationMs,
		Threads:           p.threads,
		SpeakerTurns:      true,
		SuppressNonSpeech: true,
		OnSegment:         p.onSegment,
		UserData:          h.id,
	}

	p.setState(StateRunning)
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				if _, ok := r.(missingHandle); ok {
					panic(r)
				}
				done <- fmt.Errorf("engine panic: %v", r)
			}
		}()
		done <- state.Full(params, samples)
	}()
	if err := <-done; err != nil {
		return p.fail(ctx, log, msgDecode, fmt.Errorf("%w: %w", ErrDecode, err))
	}
	return nil
}

// fail reports msg to the host and returns err. Delivery of the error event
// is best-effort.
func (p *Pipeline) fail(ctx context.Context, log *slog.Logger, msg string, err error) error {
	if emitErr := p.emitter.Emit(ctx, event.Error(msg)); emitErr != nil {
		log.Debug("error event not delivered", "error", emitErr)
	}
	return err
}

func (p *Pipeline) save(ctx context.Context, log *slog.Logger, req store.Request, res Result, started time.Time, runErr error) {
	if p.archive == nil {
		return
	}
	run := archive.Run{
		ID:         res.RunID,
		Request:    req,
		State:      res.State.String(),
		StartedAt:  started,
		FinishedAt: started.Add(res.Elapsed),
		Segments:   res.Segments,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := p.archive.SaveRun(ctx, run); err != nil {
		log.Warn("archiving run failed", "error", err)
	}
}

type closer interface{ Close() error }

func closeQuietly(log *slog.Logger, what string, c closer) {
	if err := c.Close(); err != nil {
		log.Warn("close failed", "resource", what, "error", err)
	}
}
