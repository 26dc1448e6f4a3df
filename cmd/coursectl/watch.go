package main

import (
	"context"

	cli "github.com/urfave/cli/v3"

	"github.com/debemdeboas/coursesync/internal/events"
	"github.com/debemdeboas/coursesync/internal/status"
)

func newWatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Print pipeline events from the daemon",
		ArgsUsage: "[key]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			p := status.New(cmd.Root().Writer)
			return daemon(cmd).Watch(ctx, cmd.Args().First(), nil, func(e events.Event) bool {
				p.Handle(e)
				return true
			})
		},
	}
}
