package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/chaz8081/gostt-stream/internal/config"
	"github.com/chaz8081/gostt-stream/internal/output"
	"github.com/chaz8081/gostt-stream/internal/transcribe"
)

func runTranscribe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("transcribe", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	format := fs.String("format", "", "transcript file: none, srt or markdown (overrides config)")
	outDir := fs.String("out", "", "directory for the transcript file (overrides config)")
	reference := fs.String("reference", "", "reference transcript file; prints the error rate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("transcribe: expected one WAV file, got %d arguments", fs.NArg())
	}
	audioPath := fs.Arg(0)

	cfg, err := common.load()
	if err != nil {
		return err
	}
	if *format != "" {
		cfg.Output.Format = *format
	}
	if *outDir != "" {
		cfg.Output.Dir = *outDir
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	log := newLogger(cfg.LogLevel)
	printBanner(cfg, "transcribe")

	a, err := buildApp(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := transcribeFile(ctx, a.pipeline, cfg, audioPath)
	if err != nil {
		return err
	}

	text := output.Text(res.Segments)
	fmt.Println(text)

	if *reference != "" {
		if err := printScore(*reference, text, cfg.Transcribe.Language); err != nil {
			log.Warn("scoring failed", "error", err)
		}
	}
	return nil
}

// transcribeFile runs one file through the pipeline and writes the
// configured transcript file.
func transcribeFile(ctx context.Context, p *transcribe.Pipeline, cfg *config.Config, audioPath string) (transcribe.Result, error) {
	st := p.NewStore()
	if err := st.Configure(request(cfg, audioPath)); err != nil {
		return transcribe.Result{}, err
	}

	res, err := p.Run(ctx, st)
	if err != nil {
		return res, err
	}

	path, err := output.WriteFile(output.Format(cfg.Output.Format), cfg.Output.Dir, audioPath, res.Segments)
	if err != nil {
		return res, err
	}
	if path != "" {
		fmt.Fprintf(os.Stderr, "Transcript written to %s\n", path)
	}
	return res, nil
}

// printScore compares text against the reference file. Languages written
// without word spacing are scored per character.
func printScore(refPath, text, language string) error {
	data, err := os.ReadFile(refPath)
	if err != nil {
		return err
	}
	unit, label := output.Words, "WER"
	switch language {
	case "", "ja", "zh", "th":
		unit, label = output.Chars, "CER"
	}
	sc := output.ErrorRate(string(data), text, unit)
	fmt.Fprintf(os.Stderr, "%s: %.2f%% (sub %d, ins %d, del %d, ref %d)\n",
		label, sc.Rate*100, sc.Substitutions, sc.Insertions, sc.Deletions, sc.Reference)
	return nil
}
