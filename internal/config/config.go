package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/gostt-stream/internal/store"
)

// appName names the config and data directories.
const appName = "gostt-stream"

// DefaultLanguage is used when a run does not specify a language.
const DefaultLanguage = store.DefaultLanguage

// Config holds all application configuration.
type Config struct {
	// ModelPath is the legacy top-level model location. Load copies it into
	// Transcribe.ModelPath when the transcribe section does not set one.
	ModelPath  string           `yaml:"model_path,omitempty"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Audio      AudioConfig      `yaml:"audio"`
	Events     EventsConfig     `yaml:"events"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Output     OutputConfig     `yaml:"output"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	LogLevel   string           `yaml:"log_level"`
}

// TranscribeConfig holds the recognition parameters for a run.
type TranscribeConfig struct {
	ModelPath  string `yaml:"model_path"`
	Language   string `yaml:"language"`
	Translate  bool   `yaml:"translate"`
	OffsetMs   int    `yaml:"offset_ms"`
	DurationMs int    `yaml:"duration_ms"` // 0 means until the end of the audio
	Threads    uint   `yaml:"threads"`     // 0 lets whisper.cpp decide
}

// AudioConfig holds audio capture settings used by the record command.
type AudioConfig struct {
	SampleRate    uint32 `yaml:"sample_rate"`
	Channels      uint32 `yaml:"channels"`
	RecordSeconds int    `yaml:"record_seconds"`
	// Hotkey, when set, starts and stops recording instead of the timer.
	Hotkey HotkeyConfig `yaml:"hotkey"`
}

// HotkeyConfig holds the push-to-talk trigger for the record command.
type HotkeyConfig struct {
	Keys []string `yaml:"keys"` // e.g. ["ctrl", "shift", "r"]; empty disables
	Mode string   `yaml:"mode"` // "hold" or "toggle"
}

// EventsConfig selects where run events are delivered.
type EventsConfig struct {
	Listen      string       `yaml:"listen"` // websocket/HTTP listen address for serve
	NATSURL     string       `yaml:"nats_url"`
	NATSSubject string       `yaml:"nats_subject"`
	Inject      InjectConfig `yaml:"inject"`
}

// InjectConfig holds text injection settings.
type InjectConfig struct {
	Enabled bool   `yaml:"enabled"`
	Method  string `yaml:"method"` // "type" or "paste"
}

// ArchiveConfig holds the transcript archive settings.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// OutputConfig controls the transcript file written after a run.
type OutputConfig struct {
	Format string `yaml:"format"` // "none", "srt" or "markdown"
	Dir    string `yaml:"dir"`
}

// MetricsConfig toggles the Prometheus endpoint in serve mode.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", appName)
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultDataDir returns the directory holding models and the archive.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", appName)
	}
	return filepath.Join(home, ".local", "share", appName)
}

// DefaultModelsDir returns the directory downloaded models are stored in.
func DefaultModelsDir() string {
	return filepath.Join(DefaultDataDir(), "models")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Transcribe: TranscribeConfig{
			ModelPath: "models/ggml-base.bin",
			Language:  DefaultLanguage,
		},
		Audio: AudioConfig{
			SampleRate:    16000,
			Channels:      1,
			RecordSeconds: 10,
			Hotkey: HotkeyConfig{
				Mode: "toggle",
			},
		},
		Events: EventsConfig{
			Listen:      "127.0.0.1:8765",
			NATSSubject: "gostt.whisper",
			Inject: InjectConfig{
				Method: "type",
			},
		},
		Archive: ArchiveConfig{
			Path: filepath.Join(DefaultDataDir(), "archive.db"),
		},
		Output: OutputConfig{
			Format: "none",
			Dir:    ".",
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in paths is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	// The legacy key has no default so its presence can be detected.
	cfg.Transcribe.ModelPath = ""
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.Transcribe.ModelPath == "" {
		cfg.Transcribe.ModelPath = cfg.ModelPath
	}
	if cfg.Transcribe.ModelPath == "" {
		cfg.Transcribe.ModelPath = Default().Transcribe.ModelPath
	}
	cfg.ModelPath = ""

	cfg.Transcribe.ModelPath = expandTilde(cfg.Transcribe.ModelPath)
	cfg.Archive.Path = expandTilde(cfg.Archive.Path)
	cfg.Output.Dir = expandTilde(cfg.Output.Dir)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Transcribe.ModelPath == "" {
		return fmt.Errorf("transcribe.model_path must not be empty")
	}
	if c.Transcribe.OffsetMs < 0 {
		return fmt.Errorf("transcribe.offset_ms must be >= 0, got %d", c.Transcribe.OffsetMs)
	}
	if c.Transcribe.DurationMs < 0 {
		return fmt.Errorf("transcribe.duration_ms must be >= 0, got %d", c.Transcribe.DurationMs)
	}

	if c.Audio.SampleRate == 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}
	if c.Audio.Channels == 0 {
		return fmt.Errorf("audio.channels must be > 0")
	}
	if c.Audio.RecordSeconds <= 0 {
		return fmt.Errorf("audio.record_seconds must be > 0")
	}
	if len(c.Audio.Hotkey.Keys) > 0 {
		switch c.Audio.Hotkey.Mode {
		case "hold", "toggle":
		default:
			return fmt.Errorf("audio.hotkey.mode must be \"hold\" or \"toggle\", got %q", c.Audio.Hotkey.Mode)
		}
	}

	switch c.Events.Inject.Method {
	case "type", "paste":
	default:
		return fmt.Errorf("events.inject.method must be \"type\" or \"paste\", got %q", c.Events.Inject.Method)
	}
	if c.Events.NATSURL != "" && c.Events.NATSSubject == "" {
		return fmt.Errorf("events.nats_subject must be set when events.nats_url is")
	}

	if c.Archive.Enabled && c.Archive.Path == "" {
		return fmt.Errorf("archive.path must not be empty when the archive is enabled")
	}

	switch c.Output.Format {
	case "none", "srt", "markdown":
	default:
		return fmt.Errorf("output.format must be none, srt, or markdown, got %q", c.Output.Format)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a config log level to a slog.Level. Unknown values
// map to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultHeader = `# gostt-stream configuration
# transcribe.language defaults to "ja"; duration_ms 0 decodes to the end.
# output.format: none | srt | markdown
`

// WriteDefault writes the default config to DefaultConfigPath. It returns
// the written path, or "" when a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
