package main

import (
	"context"
	"fmt"
	"strings"

	cli "github.com/urfave/cli/v3"

	"github.com/debemdeboas/coursesync/internal/events"
	"github.com/debemdeboas/coursesync/internal/status"
)

func newRetryCommand() *cli.Command {
	return &cli.Command{
		Name:      "retry",
		Usage:     "Resubmit a failed draft, re-attaching files lost in a restart",
		ArgsUsage: "<key>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "attach",
				Usage: "Attach a local file before retrying, as slot=path (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "follow",
				Usage: "Print events until the run finishes",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			key := cmd.Args().First()
			if key == "" {
				return cli.Exit("usage: coursectl retry <key>", 2)
			}
			attachments, err := parseAttachments(cmd.StringSlice("attach"))
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}

			d := daemon(cmd)
			for _, a := range attachments {
				if err := d.Attach(ctx, key, a.slot, a.path); err != nil {
					return fmt.Errorf("attach %s: %w", a.path, err)
				}
			}

			if !cmd.Bool("follow") {
				if err := d.Retry(ctx, key); err != nil {
					return err
				}
				fmt.Fprintf(cmd.Root().Writer, "Retry of %s queued\n", key)
				return nil
			}

			return followRun(ctx, cmd, d, key, func() error { return d.Retry(ctx, key) })
		},
	}
}

type attachment struct {
	slot string
	path string
}

func parseAttachments(specs []string) ([]attachment, error) {
	out := make([]attachment, 0, len(specs))
	for _, spec := range specs {
		slot, path, ok := strings.Cut(spec, "=")
		if !ok || slot == "" || path == "" {
			return nil, fmt.Errorf("invalid --attach %q, want slot=path", spec)
		}
		out = append(out, attachment{slot: slot, path: path})
	}
	return out, nil
}

// followRun opens the event stream of key, calls trigger and prints events
// until the run succeeds or fails.
func followRun(ctx context.Context, cmd *cli.Command, d *daemonClient, key string, trigger func() error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := status.New(cmd.Root().Writer)
	var failure *events.ErrorEvent
	connected := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- d.Watch(ctx, key, func() { close(connected) }, func(e events.Event) bool {
			p.Handle(e)
			switch ev := e.(type) {
			case events.SuccessEvent:
				return false
			case events.ErrorEvent:
				failure = &ev
				return false
			}
			return true
		})
	}()

	select {
	case <-connected:
	case err := <-done:
		if err == nil {
			err = fmt.Errorf("event stream of %s closed", key)
		}
		return err
	}

	if err := trigger(); err != nil {
		return err
	}
	if err := <-done; err != nil {
		return err
	}
	if failure != nil {
		return cli.Exit(fmt.Sprintf("submission failed (%s): %s", failure.ErrorType, failure.Message), 1)
	}
	return nil
}
