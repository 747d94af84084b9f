package cli

import (
	"context"
	"encoding/json"

	"github.com/foodlens/foodlens/pkg/fooddata"
	"github.com/foodlens/foodlens/pkg/model"
	"github.com/foodlens/foodlens/pkg/usecase/analyze"
	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"
)

func mcpCommand() *cli.Command {
	var cfg config

	flags := append([]cli.Flag{}, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, foodDataFlags(&cfg)...)

	return &cli.Command{
		Name:  "mcp",
		Usage: "Run an MCP server over stdio exposing analysis tools",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, err := cfg.newAnalyzer(ctx)
			if err != nil {
				return err
			}

			rotator, err := cfg.newRotator()
			if err != nil {
				return err
			}
			food := cfg.newFoodData(rotator)
			products := cfg.newProductLookup(rotator)

			server := mcp.NewServer(&mcp.Implementation{
				Name:    "foodlens",
				Version: "0.1.0",
			}, nil)

			mcp.AddTool(server, &mcp.Tool{
				Name:        "analyze_image",
				Description: "Analyze a food photo: identify foods, estimate portions, and resolve nutrition data",
			}, analyzeImageTool(uc))

			mcp.AddTool(server, &mcp.Tool{
				Name:        "search_food_database",
				Description: "Search USDA FoodData Central for foods matching a query",
			}, searchFoodTool(food))

			mcp.AddTool(server, &mcp.Tool{
				Name:        "lookup_barcode",
				Description: "Look up a packaged product by its barcode",
			}, lookupBarcodeTool(products))

			return server.Run(ctx, &mcp.StdioTransport{})
		},
	}
}

type analyzeImageParams struct {
	ImageRef string `json:"image_ref" jsonschema:"Local file path or gs:// URI of the food photo"`
}

func analyzeImageTool(uc *analyze.UseCase) func(context.Context, *mcp.CallToolRequest, *analyzeImageParams) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, params *analyzeImageParams) (*mcp.CallToolResult, any, error) {
		if params.ImageRef == "" {
			return nil, nil, goerr.New("image_ref is required")
		}

		id, err := uc.StartAnalysis(ctx, params.ImageRef)
		if err != nil {
			return nil, nil, err
		}

		events, err := uc.Subscribe(id)
		if err != nil {
			return nil, nil, err
		}
		for range events {
			// drain until the analysis reaches a terminal state
		}

		session, err := uc.GetResult(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(session)
	}
}

type searchFoodParams struct {
	Query    string `json:"query" jsonschema:"Search query for the food"`
	PageSize int    `json:"page_size,omitempty" jsonschema:"Number of results to return (default 25, max 100)"`
}

func searchFoodTool(client fooddata.Client) func(context.Context, *mcp.CallToolRequest, *searchFoodParams) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, params *searchFoodParams) (*mcp.CallToolResult, any, error) {
		if params.Query == "" {
			return nil, nil, goerr.New("query is required")
		}

		candidates, err := client.Search(ctx, params.Query, params.PageSize)
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(candidates)
	}
}

type lookupBarcodeParams struct {
	Barcode string   `json:"barcode" jsonschema:"The barcode digits (EAN-13, UPC-A, EAN-8 or UPC-E)"`
	Sources []string `json:"sources,omitempty" jsonschema:"Sources to query: usda, open_food_facts (default all)"`
}

func lookupBarcodeTool(products *fooddata.ProductLookup) func(context.Context, *mcp.CallToolRequest, *lookupBarcodeParams) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, params *lookupBarcodeParams) (*mcp.CallToolResult, any, error) {
		if params.Barcode == "" {
			return nil, nil, goerr.New("barcode is required")
		}

		want := make([]model.DataSource, 0, len(params.Sources))
		for _, s := range params.Sources {
			want = append(want, model.DataSource(s))
		}

		records, err := products.SearchByBarcode(ctx, params.Barcode, want...)
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(records)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to marshal result")
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(raw)},
		},
	}, nil, nil
}
