package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/foodlens/foodlens/pkg/barcode"
	"github.com/foodlens/foodlens/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func barcodeCommand() *cli.Command {
	var (
		cfg     config
		lookup  bool
		sources []string
		asJSON  bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "lookup",
			Aliases:     []string{"l"},
			Usage:       "Resolve detected food barcodes to product records",
			Destination: &lookup,
		},
		&cli.StringSliceFlag{
			Name:        "source",
			Aliases:     []string{"s"},
			Usage:       "Product sources to query (usda, open_food_facts)",
			Destination: &sources,
		},
		&cli.BoolFlag{
			Name:        "json",
			Aliases:     []string{"j"},
			Usage:       "Print results as JSON",
			Destination: &asJSON,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, foodDataFlags(&cfg)...)

	return &cli.Command{
		Name:      "barcode",
		Usage:     "Detect barcodes in an image, optionally resolving products",
		ArgsUsage: "<image path>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("exactly one image path is required")
			}

			data, err := os.ReadFile(c.Args().First())
			if err != nil {
				return goerr.Wrap(err, "failed to read image")
			}

			detections := barcode.NewDetector().Detect(ctx, data)

			var records []model.ProductRecord
			if lookup {
				if err := cfg.load(); err != nil {
					return err
				}
				rotator, err := cfg.newRotator()
				if err != nil {
					return err
				}
				products := cfg.newProductLookup(rotator)

				want := make([]model.DataSource, 0, len(sources))
				for _, s := range sources {
					want = append(want, model.DataSource(s))
				}

				for _, det := range detections {
					if !det.IsFoodBarcode {
						continue
					}
					recs, err := products.SearchByBarcode(ctx, det.Data, want...)
					if err != nil {
						return err
					}
					records = append(records, recs...)
				}
			}

			if asJSON {
				enc := json.NewEncoder(c.Root().Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"detections": detections,
					"products":   records,
				})
			}

			w := c.Root().Writer
			if len(detections) == 0 {
				fmt.Fprintf(w, "No barcodes found\n")
				return nil
			}

			for i, det := range detections {
				fmt.Fprintf(w, "%d. %s (%s)\n", i+1, det.Formatted, det.Symbology)
				fmt.Fprintf(w, "   Data: %s, food barcode: %v\n", det.Data, det.IsFoodBarcode)
				if det.Orientation != "" {
					fmt.Fprintf(w, "   Orientation: %s\n", det.Orientation)
				}
			}

			for _, p := range records {
				fmt.Fprintf(w, "\n[%s] %s", p.DataSource, p.Name)
				if p.Brand != "" {
					fmt.Fprintf(w, " (%s)", p.Brand)
				}
				fmt.Fprintf(w, "\n   Per 100g: %.1f kcal, %.1fg protein, %.1fg fat, %.1fg carbs\n",
					p.Nutrition.Calories, p.Nutrition.ProteinG, p.Nutrition.FatG, p.Nutrition.CarbsG)
			}

			return nil
		},
	}
}
