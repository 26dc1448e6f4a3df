package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/debemdeboas/coursesync/internal/fakeapi"
)

func newFakeAPICommand() *cli.Command {
	return &cli.Command{
		Name:  "fake-api",
		Usage: "Serve an in-memory stand-in for the remote course API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address",
				Value: "127.0.0.1:12701",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			addr := cmd.String("addr")
			fake := fakeapi.New()
			fake.SetBaseURL("http://" + addr)

			srv := &http.Server{
				Addr:              addr,
				Handler:           fake.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()

			fmt.Fprintf(cmd.Root().Writer, "Fake course API listening on http://%s\n", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}
