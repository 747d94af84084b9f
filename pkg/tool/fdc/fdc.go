package fdc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/foodlens/foodlens/pkg/fooddata"
	"github.com/foodlens/foodlens/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

type searchInput struct {
	Query    string `json:"query"`
	PageSize int    `json:"page_size"`
}

// SearchTool exposes food database search to the LLM.
type SearchTool struct {
	client fooddata.Client
}

// NewSearch creates the search_food_database tool.
func NewSearch(client fooddata.Client) *SearchTool {
	return &SearchTool{client: client}
}

func (x *SearchTool) Prompt(ctx context.Context) string {
	return `Use search_food_database to find candidate foods in USDA FoodData Central. Prefer generic descriptions over branded products when matching whole foods, and include the cooking method in the query when it matters (e.g. "chicken breast grilled").`
}

func (x *SearchTool) Spec() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        "search_food_database",
				Description: "Search the USDA FoodData Central database for foods matching a query",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"query": {
							Type:        genai.TypeString,
							Description: "Search query for the food",
						},
						"page_size": {
							Type:        genai.TypeInteger,
							Description: "Number of results to return (default 25, max 100)",
						},
					},
					Required: []string{"query"},
				},
			},
		},
	}
}

func (x *SearchTool) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	var input searchInput
	if err := parseArgs(fc.Args, &input); err != nil {
		return nil, err
	}

	candidates, err := x.client.Search(ctx, input.Query, input.PageSize)
	if errors.Is(err, model.ErrRateLimited) {
		// one retry with a rotated credential, then give up on this call
		candidates, err = x.client.Search(ctx, input.Query, input.PageSize)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "food database search failed", goerr.V("query", input.Query))
	}

	if len(candidates) == 0 {
		return &genai.FunctionResponse{
			Name:     fc.Name,
			Response: map[string]any{"result": "No results found for query: " + input.Query},
		}, nil
	}

	resultJSON, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal search results")
	}

	return &genai.FunctionResponse{
		Name:     fc.Name,
		Response: map[string]any{"result": string(resultJSON)},
	}, nil
}

type detailInput struct {
	FDCID int64 `json:"fdc_id"`
}

// DetailTool exposes full nutrition record fetches to the LLM. An
// optional observer sees every successful fetch, which lets the
// resolver keep a best-so-far record independent of the model's final
// answer.
type DetailTool struct {
	client   fooddata.Client
	onDetail func(*fooddata.FoodDetail)
}

// NewDetail creates the get_food_nutrition tool.
func NewDetail(client fooddata.Client, onDetail func(*fooddata.FoodDetail)) *DetailTool {
	return &DetailTool{client: client, onDetail: onDetail}
}

func (x *DetailTool) Prompt(ctx context.Context) string {
	return `Use get_food_nutrition to fetch the per-100g nutrition record of a candidate once you have its FDC ID.`
}

func (x *DetailTool) Spec() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        "get_food_nutrition",
				Description: "Get detailed nutrition information for a specific food using its FDC ID",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"fdc_id": {
							Type:        genai.TypeInteger,
							Description: "The FDC ID of the food item from the USDA database",
						},
					},
					Required: []string{"fdc_id"},
				},
			},
		},
	}
}

func (x *DetailTool) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	var input detailInput
	if err := parseArgs(fc.Args, &input); err != nil {
		return nil, err
	}

	detail, err := x.client.GetDetail(ctx, input.FDCID)
	if errors.Is(err, model.ErrRateLimited) {
		detail, err = x.client.GetDetail(ctx, input.FDCID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "nutrition fetch failed", goerr.V("fdc_id", input.FDCID))
	}

	if x.onDetail != nil {
		x.onDetail(detail)
	}

	resultJSON, err := json.MarshalIndent(detail, "", "  ")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal nutrition record")
	}

	return &genai.FunctionResponse{
		Name:     fc.Name,
		Response: map[string]any{"result": string(resultJSON)},
	}, nil
}

func parseArgs(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal function arguments")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return goerr.Wrap(err, "failed to parse input parameters")
	}
	return nil
}
