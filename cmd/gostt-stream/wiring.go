package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chaz8081/gostt-stream/internal/archive"
	"github.com/chaz8081/gostt-stream/internal/config"
	"github.com/chaz8081/gostt-stream/internal/event"
	"github.com/chaz8081/gostt-stream/internal/inject"
	"github.com/chaz8081/gostt-stream/internal/observe"
	"github.com/chaz8081/gostt-stream/internal/store"
	"github.com/chaz8081/gostt-stream/internal/transcribe"
	"github.com/chaz8081/gostt-stream/internal/transcribe/whispercpp"
)

// app holds the pipeline and everything it was built from.
type app struct {
	pipeline *transcribe.Pipeline
	archive  *archive.Store
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp wires the configured event sinks, archive and metrics into a
// pipeline. extra sinks (such as the websocket hub) are appended.
func buildApp(ctx context.Context, cfg *config.Config, log *slog.Logger, metrics *observe.Metrics, extra ...event.Emitter) (*app, error) {
	a := &app{}
	sinks := event.Fanout{event.LogEmitter{Log: log}}

	if cfg.Events.NATSURL != "" {
		nc, err := event.ConnectNATS(cfg.Events.NATSURL, cfg.Events.NATSSubject, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, nc.Close)
		sinks = append(sinks, nc)
	}
	if cfg.Events.Inject.Enabled {
		sinks = append(sinks, inject.NewSink(inject.NewInjector(cfg.Events.Inject.Method)))
		log.Info("text injection enabled", "method", cfg.Events.Inject.Method)
	}
	sinks = append(sinks, extra...)

	opts := []transcribe.Option{
		transcribe.WithThreads(cfg.Transcribe.Threads),
		transcribe.WithMetrics(metrics),
	}
	if cfg.Archive.Enabled {
		arc, err := archive.Open(ctx, cfg.Archive.Path, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open archive: %w", err)
		}
		a.archive = arc
		a.closers = append(a.closers, func() { _ = arc.Close() })
		opts = append(opts, transcribe.WithArchive(arc))
	}

	a.pipeline = transcribe.New(whispercpp.Engine{}, sinks, log, opts...)
	return a, nil
}

// request builds a run request for audioPath from the config.
func request(cfg *config.Config, audioPath string) store.Request {
	return store.Request{
		AudioPath:  audioPath,
		ModelPath:  cfg.Transcribe.ModelPath,
		Language:   cfg.Transcribe.Language,
		Translate:  cfg.Transcribe.Translate,
		OffsetMs:   cfg.Transcribe.OffsetMs,
		DurationMs: cfg.Transcribe.DurationMs,
	}
}
