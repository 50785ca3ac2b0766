package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/chaz8081/gostt-stream/internal/config"
	"github.com/chaz8081/gostt-stream/internal/models"
)

func runDownload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("download-model", flag.ContinueOnError)
	name := fs.String("name", models.DefaultModel, "model to download: "+strings.Join(models.Names(), ", "))
	dir := fs.String("dir", config.DefaultModelsDir(), "destination directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Println("=== Model Download ===")
	d := &models.Downloader{Dir: *dir, Progress: os.Stdout}
	path, err := d.Download(ctx, *name)
	if err != nil {
		return err
	}
	fmt.Printf("Model ready: %s\n", path)
	fmt.Printf("Set transcribe.model_path: %s in %s to use it.\n", path, config.DefaultConfigPath())
	return nil
}
