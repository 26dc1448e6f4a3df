// Command coursectl submits course drafts and inspects a running coursesync
// daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"

	"github.com/debemdeboas/coursesync/internal/app"
	"github.com/debemdeboas/coursesync/internal/config"
	"github.com/debemdeboas/coursesync/internal/logger"
)

const (
	flagConfig   = "config"
	flagDaemon   = "daemon"
	flagLogLevel = "log-level"
)

func newCommand() *cli.Command {
	return &cli.Command{
		Name:                  "coursectl",
		Usage:                 "Submit course drafts and follow their uploads",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "Path to the configuration file",
				Value:   "coursesync.yaml",
				Sources: cli.EnvVars("COURSESYNC_CONFIG"),
			},
			&cli.StringFlag{
				Name:    flagDaemon,
				Usage:   "Base URL of a running coursesync daemon",
				Value:   "http://127.0.0.1:12700",
				Sources: cli.EnvVars("COURSESYNC_DAEMON"),
			},
			&cli.StringFlag{
				Name:    flagLogLevel,
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars(config.EnvLogLevel),
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			app.SetLoggers(logger.New(cmd.String(flagLogLevel)))
			return ctx, nil
		},
		Commands: []*cli.Command{
			newSubmitCommand(),
			newDraftsCommand(),
			newRetryCommand(),
			newWatchCommand(),
			newPreviewCommand(),
			newCoursesCommand(),
			newFakeAPICommand(),
		},
	}
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "Error loading .env file:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	return config.Load(cmd.Root().String(flagConfig))
}

func daemon(cmd *cli.Command) *daemonClient {
	return newDaemonClient(cmd.Root().String(flagDaemon))
}
