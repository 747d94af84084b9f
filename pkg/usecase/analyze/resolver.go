package analyze

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"strings"
	"text/template"

	"github.com/foodlens/foodlens/pkg/adapter"
	"github.com/foodlens/foodlens/pkg/fooddata"
	"github.com/foodlens/foodlens/pkg/model"
	"github.com/foodlens/foodlens/pkg/tool"
	"github.com/foodlens/foodlens/pkg/tool/fdc"
	"github.com/foodlens/foodlens/pkg/utils/logging"
	"google.golang.org/genai"
)

//go:embed prompt/resolve.md
var resolvePromptRaw string

var resolvePromptTmpl = template.Must(template.New("resolve").Parse(resolvePromptRaw))

// resolverAnswer is the JSON object the agent must end its
// conversation with.
type resolverAnswer struct {
	Found           bool                   `json:"found"`
	FDCID           int64                  `json:"fdc_id"`
	Description     string                 `json:"description"`
	MatchConfidence float64                `json:"match_confidence"`
	Nutrition       model.NutritionPer100G `json:"nutrition_per_100g"`
}

// Resolver runs the stage-2 tool-calling loop for one food at a time.
// Every call produces exactly one FoodResolution; lookup problems end
// up in its status, never as an error. The only error it returns is
// credential exhaustion, which the caller treats as fatal for the
// whole analysis.
type Resolver struct {
	gemini           adapter.Gemini
	food             fooddata.Client
	maxIterations    int
	acceptConfidence float64
}

type ResolverOption func(*Resolver)

func WithMaxIterations(n int) ResolverOption {
	return func(x *Resolver) {
		if n > 0 {
			x.maxIterations = n
		}
	}
}

func WithAcceptConfidence(c float64) ResolverOption {
	return func(x *Resolver) {
		x.acceptConfidence = c
	}
}

// NewResolver creates a stage-2 resolver over the given food database
// client.
func NewResolver(gemini adapter.Gemini, food fooddata.Client, opts ...ResolverOption) *Resolver {
	x := &Resolver{
		gemini:           gemini,
		food:             food,
		maxIterations:    5,
		acceptConfidence: 0.85,
	}

	for _, opt := range opts {
		opt(x)
	}

	return x
}

// Resolve finds the nutrition record for one identified food and
// scales it to the estimated portion.
func (x *Resolver) Resolve(ctx context.Context, food model.IdentifiedFood) (model.FoodResolution, error) {
	// The detail tool records every record the agent actually fetched;
	// the last one is the fallback when the final answer is unusable.
	var lastDetail *fooddata.FoodDetail
	registry := tool.New(
		fdc.NewSearch(x.food),
		fdc.NewDetail(x.food, func(d *fooddata.FoodDetail) { lastDetail = d }),
	)

	finalText, err := x.runAgent(ctx, registry, food)
	if err != nil {
		if errors.Is(err, model.ErrAllCredentialsExhausted) {
			return model.FoodResolution{}, err
		}
		return failedResolution(food, err.Error()), nil
	}

	return x.decide(ctx, food, finalText, lastDetail), nil
}

// runAgent drives the function-calling conversation until the model
// stops requesting tools or the iteration budget runs out.
func (x *Resolver) runAgent(ctx context.Context, registry *tool.Registry, food model.IdentifiedFood) (string, error) {
	system, err := x.systemPrompt(ctx, registry, food)
	if err != nil {
		return "", err
	}

	terms := food.QueryTerms()
	if len(terms) > 3 {
		terms = terms[:3]
	}
	ask := "Find nutrition data for this food: " + food.Name
	if food.CookingMethod != "" && food.CookingMethod != "unknown" {
		ask += " (" + food.CookingMethod + ")"
	}
	ask += ". Try these search terms: " + strings.Join(terms, ", ")

	contents := []*genai.Content{
		genai.NewContentFromText(ask, genai.RoleUser),
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, ""),
		Temperature:       genai.Ptr(float32(0.0)),
		Tools:             registry.Specs(),
	}

	var finalText string
	for i := 0; i < x.maxIterations; i++ {
		resp, err := x.gemini.GenerateContent(ctx, contents, config)
		if err != nil {
			return "", err
		}

		hasFunctionCall := false
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}

			contents = append(contents, candidate.Content)

			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					finalText = part.Text
				}

				if part.FunctionCall == nil {
					continue
				}
				hasFunctionCall = true

				funcResp, execErr := registry.Execute(ctx, *part.FunctionCall)
				if execErr != nil {
					logging.From(ctx).Warn("tool execution failed",
						"tool", part.FunctionCall.Name, "food", food.Name, "error", execErr)
					funcResp = &genai.FunctionResponse{
						Name:     part.FunctionCall.Name,
						Response: map[string]any{"error": execErr.Error()},
					}
				}

				contents = append(contents, &genai.Content{
					Role:  genai.RoleUser,
					Parts: []*genai.Part{{FunctionResponse: funcResp}},
				})
			}
		}

		if !hasFunctionCall {
			break
		}
	}

	return finalText, nil
}

func (x *Resolver) systemPrompt(ctx context.Context, registry *tool.Registry, food model.IdentifiedFood) (string, error) {
	var buf bytes.Buffer
	err := resolvePromptTmpl.Execute(&buf, map[string]any{
		"Name":                 food.Name,
		"CookingMethod":        food.CookingMethod,
		"EstimatedWeightGrams": food.EstimatedWeightGrams,
		"ToolPrompts":          registry.Prompts(ctx),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// decide turns the agent's final answer plus the observed detail
// fetches into a resolution. The nutrition values always come from the
// database record, never from the model's own numbers.
func (x *Resolver) decide(ctx context.Context, food model.IdentifiedFood, finalText string, lastDetail *fooddata.FoodDetail) model.FoodResolution {
	var answer resolverAnswer
	parsed := json.Unmarshal([]byte(extractJSON(finalText)), &answer) == nil

	if parsed && answer.Found && answer.MatchConfidence >= x.acceptConfidence {
		detail := lastDetail
		if detail == nil || detail.FDCID != answer.FDCID {
			fetched, err := x.food.GetDetail(ctx, answer.FDCID)
			if err != nil {
				logging.From(ctx).Warn("verification fetch failed",
					"fdc_id", answer.FDCID, "food", food.Name, "error", err)
			} else {
				detail = fetched
			}
		}
		if detail != nil {
			return resolvedResolution(food, detail, answer.MatchConfidence, "")
		}
	}

	// Low confidence or unusable answer: fall back to the closest record
	// the agent actually looked at.
	if lastDetail != nil {
		confidence := 0.0
		if parsed {
			confidence = answer.MatchConfidence
		}
		return resolvedResolution(food, lastDetail, confidence, "closest available match")
	}

	if parsed && !answer.Found {
		return failedResolution(food, "no matching record in the database")
	}
	return failedResolution(food, model.ErrNoCandidateFound.Error())
}

func resolvedResolution(food model.IdentifiedFood, detail *fooddata.FoodDetail, confidence float64, note string) model.FoodResolution {
	portion := detail.Nutrition.Scale(food.EstimatedWeightGrams)
	return model.FoodResolution{
		Food: food,
		Match: &model.NutritionMatch{
			FDCID:           detail.FDCID,
			Description:     detail.Description,
			MatchConfidence: confidence,
		},
		Nutrition: &portion,
		Status:    model.ResolutionResolved,
		Note:      note,
	}
}

func failedResolution(food model.IdentifiedFood, note string) model.FoodResolution {
	return model.FoodResolution{
		Food:   food,
		Status: model.ResolutionFailed,
		Note:   note,
	}
}

// extractJSON strips markdown fences and surrounding prose from a
// model response, leaving the first balanced JSON value.
func extractJSON(s string) string {
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		if nl := strings.Index(rest, "\n"); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			s = rest[:end]
		} else {
			s = rest
		}
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	s = s[start:]

	depth := 0
	inString := false
	escape := false
	for i, c := range s {
		if escape {
			escape = false
			continue
		}
		switch c {
		case '\\':
			escape = true
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				depth++
			}
		case '}', ']':
			if !inString {
				depth--
				if depth == 0 {
					return s[:i+1]
				}
			}
		}
	}
	return s
}
