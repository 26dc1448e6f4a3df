package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	cli "github.com/urfave/cli/v3"

	"github.com/debemdeboas/coursesync/internal/editor"
)

func newDraftsCommand() *cli.Command {
	return &cli.Command{
		Name:  "drafts",
		Usage: "Inspect drafts held by the daemon",
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List stored drafts",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					views, err := daemon(cmd).List(ctx)
					if err != nil {
						return err
					}
					printDrafts(cmd.Root().Writer, views)
					return nil
				},
			},
			{
				Name:      "show",
				Usage:     "Print one draft as JSON",
				ArgsUsage: "<key>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					key := cmd.Args().First()
					if key == "" {
						return cli.Exit("usage: coursectl drafts show <key>", 2)
					}
					v, err := daemon(cmd).Get(ctx, key)
					if err != nil {
						return err
					}
					enc := json.NewEncoder(cmd.Root().Writer)
					enc.SetIndent("", "  ")
					return enc.Encode(v)
				},
			},
			{
				Name:      "discard",
				Usage:     "Delete a draft that is not being submitted",
				ArgsUsage: "<key>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					key := cmd.Args().First()
					if key == "" {
						return cli.Exit("usage: coursectl drafts discard <key>", 2)
					}
					if err := daemon(cmd).Discard(ctx, key); err != nil {
						return err
					}
					fmt.Fprintf(cmd.Root().Writer, "Discarded draft %s\n", key)
					return nil
				},
			},
		},
	}
}

func printDrafts(w io.Writer, views []editor.DraftView) {
	if len(views) == 0 {
		fmt.Fprintln(w, "No drafts")
		return
	}

	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("KEY", "TITLE", "STATE", "SUBMIT", "REV", "MISSING FILES").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	for _, v := range views {
		missing := make([]string, 0, len(v.MissingFiles))
		for _, ref := range v.MissingFiles {
			missing = append(missing, ref.Name)
		}
		t.Row(
			v.Key,
			v.Draft.Form.Title,
			string(v.State),
			strconv.FormatBool(v.Draft.NeedsSubmission),
			strconv.FormatUint(v.Revision, 10),
			strings.Join(missing, ", "),
		)
	}
	fmt.Fprintln(w, t.Render())
}
