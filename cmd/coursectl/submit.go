package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	cli "github.com/urfave/cli/v3"

	"github.com/debemdeboas/coursesync/internal/app"
	"github.com/debemdeboas/coursesync/internal/draftfile"
	"github.com/debemdeboas/coursesync/internal/events"
	"github.com/debemdeboas/coursesync/internal/status"
	"github.com/debemdeboas/coursesync/internal/store"
)

func newSubmitCommand() *cli.Command {
	return &cli.Command{
		Name:      "submit",
		Usage:     "Upload a draft file's media and create or update its course",
		ArgsUsage: "<draft.md>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "persist",
				Usage: "Keep the draft in the configured storage instead of memory",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return cli.Exit("usage: coursectl submit <draft.md>", 2)
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cmd.Bool("persist") {
				cfg.Storage.Driver = "memory"
			}

			im, err := draftfile.Load(path)
			if err != nil {
				return err
			}
			defer im.Close()

			a, err := app.New(ctx, cfg, zerolog.Nop())
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			bus := a.Orchestrator.Bus()
			stopPrinter := status.New(cmd.Root().Writer).Attach(bus)
			defer stopPrinter()

			var failure *events.ErrorEvent
			sub := bus.Subscribe(events.KindError, func(e events.Event) {
				ev := e.(events.ErrorEvent)
				failure = &ev
			})
			defer bus.Unsubscribe(sub)

			a.Start(ctx)
			err = a.Store.Commit(ctx, im.Draft, store.CommitOptions{Submit: true, Files: im.Files})
			a.Orchestrator.Stop()
			if err != nil {
				return err
			}
			if failure != nil {
				return cli.Exit(fmt.Sprintf("submission failed (%s): %s", failure.ErrorType, failure.Message), 1)
			}
			return nil
		},
	}
}
