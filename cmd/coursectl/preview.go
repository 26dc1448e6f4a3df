package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/debemdeboas/coursesync/internal/config"
	"github.com/debemdeboas/coursesync/internal/draftfile"
	"github.com/debemdeboas/coursesync/internal/render"
)

func newPreviewCommand() *cli.Command {
	return &cli.Command{
		Name:      "preview",
		Usage:     "Render a draft file as an HTML page",
		ArgsUsage: "<draft.md>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Write the page to this file instead of stdout",
			},
			&cli.StringFlag{
				Name:  "theme",
				Usage: "Syntax highlighting theme",
				Value: config.DefaultDarkSyntaxTheme,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return cli.Exit("usage: coursectl preview <draft.md>", 2)
			}
			im, err := draftfile.Load(path)
			if err != nil {
				return err
			}
			defer im.Close()

			page, err := render.Preview(im.Draft, cmd.String("theme"))
			if err != nil {
				return err
			}
			if out := cmd.String("out"); out != "" {
				return os.WriteFile(out, page, 0o644)
			}
			_, err = cmd.Root().Writer.Write(page)
			return err
		},
	}
}
