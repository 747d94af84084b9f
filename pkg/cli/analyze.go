package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/foodlens/foodlens/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func analyzeCommand() *cli.Command {
	var (
		cfg        config
		asJSON     bool
		noProgress bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "json",
			Aliases:     []string{"j"},
			Usage:       "Print the full session as JSON",
			Destination: &asJSON,
		},
		&cli.BoolFlag{
			Name:        "no-barcode",
			Usage:       "Skip barcode detection and product lookup",
			Destination: &cfg.noBarcode,
		},
		&cli.BoolFlag{
			Name:        "no-progress",
			Usage:       "Disable the progress spinner",
			Destination: &noProgress,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, foodDataFlags(&cfg)...)

	return &cli.Command{
		Name:      "analyze",
		Usage:     "Analyze a food photo and resolve nutrition data",
		ArgsUsage: "<image path or gs:// URI>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("exactly one image reference is required")
			}
			imageRef := c.Args().First()

			uc, err := cfg.newAnalyzer(ctx)
			if err != nil {
				return err
			}

			id, err := uc.StartAnalysis(ctx, imageRef)
			if err != nil {
				return err
			}
			events, err := uc.Subscribe(id)
			if err != nil {
				return err
			}

			var sp *spinner.Spinner
			if !noProgress && !asJSON {
				sp = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
				sp.Start()
				defer sp.Stop()
			}

			for ev := range events {
				if sp != nil && ev.Message != "" {
					sp.Suffix = fmt.Sprintf(" %s (%d%%)", ev.Message, ev.Progress)
				}
				if ev.Step == model.StepFoodDetectionComplete && sp != nil {
					sp.Suffix = fmt.Sprintf(" found %d foods, resolving nutrition...", len(ev.Foods))
				}
				if ev.Step == model.StepError {
					if sp != nil {
						sp.Stop()
					}
					return goerr.New(ev.Message)
				}
			}

			if sp != nil {
				sp.Stop()
			}

			session, err := uc.GetResult(ctx, id)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(c.Root().Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(session)
			}

			printSession(c, session)
			return nil
		},
	}
}

func printSession(c *cli.Command, s *model.AnalysisSession) {
	w := c.Root().Writer

	fmt.Fprintf(w, "Session: %s\n", s.ID)
	fmt.Fprintf(w, "Foods identified: %d, resolved: %d (%.0f%%)\n\n",
		len(s.Stage1), s.ResolvedCount(), s.SuccessRate*100)

	for i, r := range s.Stage2 {
		fmt.Fprintf(w, "%d. %s (%.0fg", i+1, r.Food.Name, r.Food.EstimatedWeightGrams)
		if r.Food.CookingMethod != "" && r.Food.CookingMethod != "unknown" {
			fmt.Fprintf(w, ", %s", r.Food.CookingMethod)
		}
		fmt.Fprintf(w, ")\n")

		switch r.Status {
		case model.ResolutionResolved:
			fmt.Fprintf(w, "   Match: %s (FDC %d, confidence %.2f)\n",
				r.Match.Description, r.Match.FDCID, r.Match.MatchConfidence)
			fmt.Fprintf(w, "   Nutrition: %.1f kcal, %.1fg protein, %.1fg fat, %.1fg carbs, %.1fg fiber\n",
				r.Nutrition.Calories, r.Nutrition.ProteinG, r.Nutrition.FatG,
				r.Nutrition.CarbsG, r.Nutrition.FiberG)
			if r.Note != "" {
				fmt.Fprintf(w, "   Note: %s\n", r.Note)
			}
		case model.ResolutionTimedOut:
			fmt.Fprintf(w, "   Timed out\n")
		default:
			fmt.Fprintf(w, "   Failed: %s\n", r.Note)
		}
		fmt.Fprintf(w, "\n")
	}

	if len(s.Barcode) > 0 {
		fmt.Fprintf(w, "Packaged products:\n")
		for _, p := range s.Barcode {
			fmt.Fprintf(w, "  [%s] %s", p.DataSource, p.Name)
			if p.Brand != "" {
				fmt.Fprintf(w, " (%s)", p.Brand)
			}
			fmt.Fprintf(w, " barcode=%s\n", p.Barcode)
		}
		fmt.Fprintf(w, "\n")
	}

	t := s.TotalNutrition
	fmt.Fprintf(w, "Total: %.1f kcal, %.1fg protein, %.1fg fat, %.1fg carbs, %.1fg fiber\n",
		t.Calories, t.ProteinG, t.FatG, t.CarbsG, t.FiberG)
}
