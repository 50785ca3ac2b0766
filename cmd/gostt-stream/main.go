// Command gostt-stream transcribes WAV files with whisper.cpp and streams
// every recognized segment to the log, NATS, a websocket or the focused
// application.
//
// Usage:
//
//	gostt-stream [transcribe] [flags] <file.wav>
//	gostt-stream serve [flags]
//	gostt-stream record [flags] <out.wav>
//	gostt-stream download-model [-name base]
//	gostt-stream init-config
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chaz8081/gostt-stream/internal/config"
)

func main() {
	cmd, args := splitCommand(os.Args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case "transcribe":
		err = runTranscribe(ctx, args)
	case "serve":
		err = runServe(ctx, args)
	case "record":
		err = runRecord(ctx, args)
	case "download-model":
		err = runDownload(ctx, args)
	case "init-config":
		err = runInitConfig()
	case "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "gostt-stream: %v\n", err)
		os.Exit(1)
	}
}

// splitCommand returns the subcommand and its arguments. A missing command,
// or a first argument that is a flag or a path, means transcribe.
func splitCommand(args []string) (string, []string) {
	if len(args) == 0 {
		return "help", nil
	}
	switch args[0] {
	case "transcribe", "serve", "record", "download-model", "init-config", "help":
		return args[0], args[1:]
	case "-h", "--help":
		return "help", nil
	}
	if strings.HasPrefix(args[0], "-") || strings.HasSuffix(strings.ToLower(args[0]), ".wav") {
		return "transcribe", args
	}
	return args[0], args[1:]
}

func usage() {
	fmt.Fprint(os.Stderr, `gostt-stream: offline speech-to-text with streamed segments

Commands:
  transcribe [flags] <file.wav>   transcribe a WAV file (default)
  serve [flags]                   HTTP/websocket server for transcription runs
  record [flags] <out.wav>        record from the microphone (timer or -hotkey), optionally transcribe
  download-model [-name base]     download a whisper ggml model
  init-config                     write the default config file

Run "gostt-stream <command> -h" for command flags.
`)
}

// commonFlags are shared by commands that run the pipeline.
type commonFlags struct {
	configPath string
	model      string
	language   string
	translate  bool
	offsetMs   int
	durationMs int
	threads    uint
	logLevel   string
	natsURL    string
	inject     bool
	archive    bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "path to config file (default: "+config.DefaultConfigPath()+")")
	fs.StringVar(&c.model, "model", "", "whisper ggml model path (overrides config)")
	fs.StringVar(&c.language, "language", "", `spoken language, e.g. "ja", "en" or "auto" (default "ja")`)
	fs.BoolVar(&c.translate, "translate", false, "translate the transcript to English")
	fs.IntVar(&c.offsetMs, "offset-ms", -1, "start decoding at this offset")
	fs.IntVar(&c.durationMs, "duration-ms", -1, "decode only this much audio (0 = to the end)")
	fs.UintVar(&c.threads, "threads", 0, "decoder threads (0 = config or engine default)")
	fs.StringVar(&c.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&c.natsURL, "nats-url", "", "publish events to this NATS server")
	fs.BoolVar(&c.inject, "inject", false, "type segments into the focused application")
	fs.BoolVar(&c.archive, "archive", false, "save the run to the local archive")
}

// load reads the config file and applies flag overrides.
func (c *commonFlags) load() (*config.Config, error) {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if c.model != "" {
		cfg.Transcribe.ModelPath = c.model
	}
	if c.language != "" {
		cfg.Transcribe.Language = c.language
	}
	if c.translate {
		cfg.Transcribe.Translate = true
	}
	if c.offsetMs >= 0 {
		cfg.Transcribe.OffsetMs = c.offsetMs
	}
	if c.durationMs >= 0 {
		cfg.Transcribe.DurationMs = c.durationMs
	}
	if c.threads > 0 {
		cfg.Transcribe.Threads = c.threads
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if c.natsURL != "" {
		cfg.Events.NATSURL = c.natsURL
	}
	if c.inject {
		cfg.Events.Inject.Enabled = true
	}
	if c.archive {
		cfg.Archive.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}
	return config.Default(), nil
}

func newLogger(level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(level),
	}))
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config, mode string) {
	lang := cfg.Transcribe.Language
	if lang == "" {
		lang = config.DefaultLanguage
	}
	fmt.Fprintln(os.Stderr, "=== gostt-stream ===")
	fmt.Fprintf(os.Stderr, "  Mode:     %s\n", mode)
	fmt.Fprintf(os.Stderr, "  Model:    %s\n", cfg.Transcribe.ModelPath)
	fmt.Fprintf(os.Stderr, "  Language: %s (translate: %v)\n", lang, cfg.Transcribe.Translate)
	if cfg.Events.NATSURL != "" {
		fmt.Fprintf(os.Stderr, "  NATS:     %s (%s)\n", cfg.Events.NATSURL, cfg.Events.NATSSubject)
	}
	if cfg.Events.Inject.Enabled {
		fmt.Fprintf(os.Stderr, "  Inject:   %s\n", cfg.Events.Inject.Method)
	}
	if cfg.Archive.Enabled {
		fmt.Fprintf(os.Stderr, "  Archive:  %s\n", cfg.Archive.Path)
	}
	fmt.Fprintf(os.Stderr, "  Log:      %s\n", cfg.LogLevel)
	fmt.Fprintln(os.Stderr, "====================")
}

func runInitConfig() error {
	path, err := config.WriteDefault()
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
		return nil
	}
	fmt.Printf("Wrote default config to %s\n", path)
	return nil
}
