package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/chaz8081/gostt-stream/internal/audio"
	"github.com/chaz8081/gostt-stream/internal/config"
	"github.com/chaz8081/gostt-stream/internal/hotkey"
	"github.com/chaz8081/gostt-stream/internal/output"
)

// captureDevice is the part of audio.Recorder the capture loops drive.
type captureDevice interface {
	Start() error
	Stop() []int16
}

func runRecord(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("record", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	seconds := fs.Int("seconds", 0, "recording length (overrides config)")
	combo := fs.String("hotkey", "", "start/stop recording with a global hotkey, e.g. ctrl+shift+r")
	mode := fs.String("hotkey-mode", "", "hotkey mode: hold or toggle (overrides config)")
	thenTranscribe := fs.Bool("transcribe", false, "transcribe the recording when done")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("record: expected one output path, got %d arguments", fs.NArg())
	}
	outPath := fs.Arg(0)

	cfg, err := common.load()
	if err != nil {
		return err
	}
	if *seconds > 0 {
		cfg.Audio.RecordSeconds = *seconds
	}
	if *combo != "" {
		if cfg.Audio.Hotkey.Keys, err = hotkey.ParseCombo(*combo); err != nil {
			return err
		}
	}
	if *mode != "" {
		cfg.Audio.Hotkey.Mode = *mode
	}
	log := newLogger(cfg.LogLevel)

	recorder, err := audio.NewRecorder(cfg.Audio.SampleRate, cfg.Audio.Channels)
	if err != nil {
		return fmt.Errorf("failed to initialize audio recorder: %w", err)
	}
	defer func() { _ = recorder.Close() }()

	var samples []int16
	if len(cfg.Audio.Hotkey.Keys) > 0 {
		samples, err = recordWithHotkey(ctx, recorder, cfg.Audio.Hotkey, log)
	} else {
		samples, err = recordFor(ctx, recorder, time.Duration(cfg.Audio.RecordSeconds)*time.Second, log)
	}
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("record: no audio captured")
	}
	if err := recorder.SaveWAV(outPath, samples); err != nil {
		return err
	}
	dur := float64(len(samples)) / float64(cfg.Audio.Channels) / float64(cfg.Audio.SampleRate)
	fmt.Fprintf(os.Stderr, "Saved %.1fs of audio to %s\n", dur, outPath)

	if !*thenTranscribe {
		return nil
	}
	// The recording itself may have been interrupted; transcribe regardless.
	runCtx := context.WithoutCancel(ctx)
	printBanner(cfg, "record + transcribe")
	a, err := buildApp(runCtx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := transcribeFile(runCtx, a.pipeline, cfg, outPath)
	if err != nil {
		return err
	}
	fmt.Println(output.Text(res.Segments))
	return nil
}

// recordFor captures until d elapses or ctx is cancelled.
func recordFor(ctx context.Context, dev captureDevice, d time.Duration, log *slog.Logger) ([]int16, error) {
	if err := dev.Start(); err != nil {
		return nil, fmt.Errorf("failed to start recording: %w", err)
	}
	log.Info("recording", "duration", d)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		log.Info("recording interrupted")
	}
	return dev.Stop(), nil
}

func recordWithHotkey(ctx context.Context, dev captureDevice, hk config.HotkeyConfig, log *slog.Logger) ([]int16, error) {
	mode, err := hotkey.ParseMode(hk.Mode)
	if err != nil {
		return nil, err
	}
	listener := hotkey.NewListener(hk.Keys, mode)
	go listener.Start()
	defer listener.Stop()

	fmt.Fprintf(os.Stderr, "Press %s to record (%s mode). Ctrl+C to quit.\n", strings.Join(hk.Keys, "+"), mode)
	return captureBetween(ctx, listener.Events(), dev, log)
}

// captureBetween records from the first start event to the next stop event.
// Cancelling ctx or closing events ends a recording in progress.
func captureBetween(ctx context.Context, events <-chan hotkey.Event, dev captureDevice, log *slog.Logger) ([]int16, error) {
	recording := false
	for {
		select {
		case <-ctx.Done():
			if recording {
				log.Info("recording interrupted")
				return dev.Stop(), nil
			}
			return nil, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if recording {
					return dev.Stop(), nil
				}
				return nil, fmt.Errorf("record: hotkey listener stopped")
			}
			switch ev.Type {
			case hotkey.EventStart:
				if recording {
					continue
				}
				if err := dev.Start(); err != nil {
					return nil, fmt.Errorf("failed to start recording: %w", err)
				}
				recording = true
				log.Info("recording started")
			case hotkey.EventStop:
				if !recording {
					continue
				}
				log.Info("recording stopped")
				return dev.Stop(), nil
			}
		}
	}
}
