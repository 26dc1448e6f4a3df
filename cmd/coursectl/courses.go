package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	cli "github.com/urfave/cli/v3"

	"github.com/debemdeboas/coursesync/internal/api"
	"github.com/debemdeboas/coursesync/internal/repository"
)

func newCoursesCommand() *cli.Command {
	return &cli.Command{
		Name:  "courses",
		Usage: "List courses on the remote service",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client := api.New(cfg.API.BaseURL, api.WithToken(cfg.API.Token), api.WithTimeout(cfg.API.Timeout.Std()))
			courses, err := repository.NewCourseRepository(client).List(ctx)
			if err != nil {
				return err
			}
			if len(courses) == 0 {
				fmt.Fprintln(cmd.Root().Writer, "No courses")
				return nil
			}

			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("ID", "SLUG", "TITLE")
			for _, c := range courses {
				t.Row(strconv.FormatInt(c.ID, 10), c.Slug, c.Title)
			}
			fmt.Fprintln(cmd.Root().Writer, t.Render())
			return nil
		},
	}
}
