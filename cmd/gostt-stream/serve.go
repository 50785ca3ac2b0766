package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/chaz8081/gostt-stream/internal/event"
	"github.com/chaz8081/gostt-stream/internal/observe"
	"github.com/chaz8081/gostt-stream/internal/output"
	"github.com/chaz8081/gostt-stream/internal/server"
	"github.com/chaz8081/gostt-stream/internal/store"
	"github.com/chaz8081/gostt-stream/internal/transcribe"
)

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	listen := fs.String("listen", "", "listen address (overrides config)")
	metrics := fs.Bool("metrics", false, "expose Prometheus metrics on /metrics")
	origins := fs.String("origins", "", "extra websocket origin pattern, e.g. localhost:*")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Events.Listen = *listen
	}
	if *metrics {
		cfg.Metrics.Enabled = true
	}

	log := newLogger(cfg.LogLevel)
	printBanner(cfg, "serve on "+cfg.Events.Listen)

	var (
		met        *observe.Metrics
		metHandler http.Handler
	)
	if cfg.Metrics.Enabled {
		prov, err := observe.InitProvider()
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		defer func() { _ = prov.Shutdown(context.Background()) }()
		if met, err = observe.NewMetrics(prov.MeterProvider); err != nil {
			return fmt.Errorf("create metrics: %w", err)
		}
		metHandler = prov.Handler
	}

	var patterns []string
	if *origins != "" {
		patterns = append(patterns, *origins)
	}
	hub := event.NewHub(log, patterns...)

	a, err := buildApp(ctx, cfg, log, met, hub)
	if err != nil {
		return err
	}
	defer a.Close()

	scfg := server.Config{
		Runner:   a.pipeline,
		Hub:      hub,
		Metrics:  metHandler,
		Defaults: request(cfg, ""),
		Log:      log,
		OnFinish: func(req store.Request, res transcribe.Result, err error) {
			if err != nil {
				return
			}
			if _, werr := output.WriteFile(output.Format(cfg.Output.Format), cfg.Output.Dir, req.AudioPath, res.Segments); werr != nil {
				log.Warn("writing transcript failed", "error", werr)
			}
		},
	}
	if a.archive != nil {
		scfg.Archive = a.archive
	}
	srv := server.New(scfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Events.Listen)
	})
	g.Go(func() error {
		<-gctx.Done()
		hub.Close()
		return nil
	})
	return g.Wait()
}
