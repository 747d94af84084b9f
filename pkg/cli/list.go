package cli

import (
	"context"
	"fmt"

	"github.com/foodlens/foodlens/pkg/model"
	"github.com/urfave/cli/v3"
)

func listCommand() *cli.Command {
	var (
		cfg    config
		offset int64
		limit  int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "offset",
			Usage:       "Number of sessions to skip",
			Destination: &offset,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"l"},
			Usage:       "Maximum number of sessions to display",
			Value:       20,
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List analysis sessions",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := cfg.load(); err != nil {
				return err
			}
			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			sessions, err := repo.ListSessions(ctx, int(offset), int(limit))
			if err != nil {
				return err
			}

			w := c.Root().Writer
			if len(sessions) == 0 {
				fmt.Fprintf(w, "No sessions found\n")
				return nil
			}

			for _, s := range sessions {
				fmt.Fprintf(w, "%s  %s  %s\n", s.ID, s.CreatedAt.Format("2006-01-02 15:04:05"), s.Status)
				fmt.Fprintf(w, "   Image: %s\n", s.ImageRef)
				if s.Status == model.SessionCompleted {
					fmt.Fprintf(w, "   Foods: %d, resolved: %d, %.1f kcal total\n",
						len(s.Stage2), s.ResolvedCount(), s.TotalNutrition.Calories)
				} else if s.Error != "" {
					fmt.Fprintf(w, "   Error: %s\n", s.Error)
				}
				fmt.Fprintf(w, "\n")
			}

			return nil
		},
	}
}
