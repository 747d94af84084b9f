package analyze

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"

	"github.com/foodlens/foodlens/pkg/adapter"
	"github.com/foodlens/foodlens/pkg/model"
	"github.com/foodlens/foodlens/pkg/utils/logging"
	"github.com/go-playground/validator/v10"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

//go:embed prompt/identify.md
var identifyPromptRaw string

// foodListSchema constrains the vision model to the stage-1 output
// shape so parsing failures are rare rather than routine.
var foodListSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"foods": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name": {
						Type:        genai.TypeString,
						Description: "Common descriptive food name",
					},
					"estimated_weight_grams": {
						Type:        genai.TypeNumber,
						Description: "Estimated portion weight in grams",
					},
					"cooking_method": {
						Type:        genai.TypeString,
						Description: "Cooking method, or 'unknown'",
					},
					"confidence": {
						Type:        genai.TypeNumber,
						Description: "Identification confidence between 0 and 1",
					},
					"search_terms": {
						Type:        genai.TypeArray,
						Items:       &genai.Schema{Type: genai.TypeString},
						Description: "Queries likely to find this food in a nutrition database",
					},
				},
				Required: []string{"name", "estimated_weight_grams", "confidence"},
			},
		},
	},
	Required: []string{"foods"},
}

type identifyOutput struct {
	Foods []model.IdentifiedFood `json:"foods"`
}

// Identifier runs the stage-1 vision pass: one image in, the list of
// identified foods with portion estimates out.
type Identifier struct {
	gemini      adapter.Gemini
	validate    *validator.Validate
	maxAttempts int
	temperature float32
}

type IdentifierOption func(*Identifier)

func WithIdentifyAttempts(n int) IdentifierOption {
	return func(x *Identifier) {
		if n > 0 {
			x.maxAttempts = n
		}
	}
}

func WithIdentifyTemperature(t float32) IdentifierOption {
	return func(x *Identifier) {
		x.temperature = t
	}
}

// NewIdentifier creates a stage-1 identifier.
func NewIdentifier(gemini adapter.Gemini, opts ...IdentifierOption) *Identifier {
	x := &Identifier{
		gemini:      gemini,
		validate:    validator.New(),
		maxAttempts: 3,
		temperature: 0.2,
	}

	for _, opt := range opts {
		opt(x)
	}

	return x
}

// Identify detects foods in the image. An empty result is valid (no
// food in the picture); a malformed model response is retried up to
// maxAttempts before the whole analysis is declared failed.
func (x *Identifier) Identify(ctx context.Context, img *adapter.Image) ([]model.IdentifiedFood, error) {
	contents := []*genai.Content{
		{
			Role: genai.RoleUser,
			Parts: []*genai.Part{
				genai.NewPartFromText("Identify all foods in this image and estimate their portions. Do not look up nutrition data."),
				{InlineData: &genai.Blob{MIMEType: img.MIMEType, Data: img.Data}},
			},
		},
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(identifyPromptRaw, ""),
		Temperature:       genai.Ptr(x.temperature),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    foodListSchema,
	}

	var lastErr error
	for attempt := 0; attempt < x.maxAttempts; attempt++ {
		resp, err := x.gemini.GenerateContent(ctx, contents, config)
		if err != nil {
			if errors.Is(err, model.ErrAllCredentialsExhausted) || ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}

		foods, err := x.parseFoods(responseText(resp))
		if err != nil {
			logging.From(ctx).Warn("discarding malformed identification response",
				"attempt", attempt+1, "error", err)
			lastErr = err
			continue
		}

		return foods, nil
	}

	return nil, goerr.Wrap(model.ErrIdentificationFailed, "food identification failed",
		goerr.V("attempts", x.maxAttempts), goerr.V("cause", lastErr))
}

func (x *Identifier) parseFoods(raw string) ([]model.IdentifiedFood, error) {
	var out identifyOutput
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return nil, goerr.Wrap(err, "invalid identification JSON")
	}

	for i := range out.Foods {
		if err := x.validate.Struct(&out.Foods[i]); err != nil {
			return nil, goerr.Wrap(model.ErrValidation, "invalid identified food",
				goerr.V("index", i), goerr.V("cause", err))
		}
	}

	return out.Foods, nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		text += part.Text
	}
	return text
}
