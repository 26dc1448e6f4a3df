// Command migrate imports draft files from a directory into the configured
// draft store. Imported drafts are not submitted; their media must be
// attached through the daemon before submitting.
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/coursesync/internal/app"
	"github.com/debemdeboas/coursesync/internal/config"
	"github.com/debemdeboas/coursesync/internal/draftfile"
	"github.com/debemdeboas/coursesync/internal/logger"
	"github.com/debemdeboas/coursesync/internal/store"
)

func main() {
	path := flag.String("path", "", "Path to the directory containing draft .md files")
	configPath := flag.String("config", "coursesync.yaml", "Path to the configuration file")
	flag.Parse()

	log := logger.New("info")
	app.SetLoggers(log)

	if *path == "" {
		log.Fatal().Msg("The --path flag is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading configuration")
	}
	if cfg.Storage.Driver == "memory" {
		log.Fatal().Msg("Importing into the memory driver would lose every draft on exit")
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening draft store")
	}
	defer a.Close(ctx)

	imported, failed := importDir(ctx, log, a.Store, *path)
	log.Info().Int("imported", imported).Int("failed", failed).Msg("Import finished")
	if failed > 0 {
		a.Close(ctx)
		os.Exit(1)
	}
}

// importDir commits every .md draft file in dir to s.
func importDir(ctx context.Context, log zerolog.Logger, s *store.Store, dir string) (imported, failed int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Error().Err(err).Str("path", dir).Msg("Error reading directory")
		return 0, 1
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		key, err := importFile(ctx, s, path)
		if err != nil {
			log.Error().Err(err).Str("file", entry.Name()).Msg("Error importing draft")
			failed++
			continue
		}
		log.Info().Str("file", entry.Name()).Str("draft_key", key).Msg("Imported draft")
		imported++
	}
	return imported, failed
}

func importFile(ctx context.Context, s *store.Store, path string) (string, error) {
	im, err := draftfile.Load(path)
	if err != nil {
		return "", err
	}
	defer im.Close()

	// Only the file placeholders outlive this process.
	if err := s.Commit(ctx, im.Draft, store.CommitOptions{Files: im.Files}); err != nil {
		return "", err
	}
	return im.Draft.DerivedKey(), nil
}
