// Command coursesync runs the draft submission daemon: it keeps course drafts
// on disk, uploads their media in chunks and submits them to the course API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/debemdeboas/coursesync/internal/app"
	"github.com/debemdeboas/coursesync/internal/config"
	"github.com/debemdeboas/coursesync/internal/logger"
)

// EnvConfigPath selects the configuration file.
const EnvConfigPath = "COURSESYNC_CONFIG"

const defaultConfigPath = "coursesync.yaml"

func configPath(getenv func(string) string) string {
	if p := getenv(EnvConfigPath); p != "" {
		return p
	}
	return defaultConfigPath
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "Error loading .env file:", err)
	}

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(configPath(os.Getenv))
	if err != nil {
		return err
	}

	log := logger.New(cfg.Logging.Level)
	app.SetLoggers(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("Shutdown")
		}
	}()

	log.Info().
		Str("addr", cfg.Server.Addr()).
		Str("api", cfg.API.BaseURL).
		Str("storage", cfg.Storage.Driver).
		Str("backend", cfg.Transfer.Backend).
		Msg("Starting coursesync")
	return a.Run(ctx)
}
