package analyze_test

import (
	"context"
	"errors"
	"testing"

	"github.com/foodlens/foodlens/pkg/fooddata"
	"github.com/foodlens/foodlens/pkg/model"
	"github.com/foodlens/foodlens/pkg/usecase/analyze"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

type mockGemini struct {
	responses []*genai.GenerateContentResponse
	err       error
	calls     int
}

func (m *mockGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return textResp(""), nil
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func textResp(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: text}},
			}},
		},
	}
}

func funcCallResp(name string, args map[string]any) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{Name: name, Args: args}}},
			}},
		},
	}
}

type mockFoodClient struct {
	search    func(ctx context.Context, query string, pageSize int) ([]fooddata.Candidate, error)
	getDetail func(ctx context.Context, fdcID int64) (*fooddata.FoodDetail, error)
}

func (m *mockFoodClient) Search(ctx context.Context, query string, pageSize int) ([]fooddata.Candidate, error) {
	if m.search == nil {
		return nil, nil
	}
	return m.search(ctx, query, pageSize)
}

func (m *mockFoodClient) GetDetail(ctx context.Context, fdcID int64) (*fooddata.FoodDetail, error) {
	if m.getDetail == nil {
		return nil, errors.New("unexpected detail fetch")
	}
	return m.getDetail(ctx, fdcID)
}

var appleDetail = &fooddata.FoodDetail{
	FDCID:       171688,
	Description: "Apples, raw, with skin",
	DataType:    "SR Legacy",
	Nutrition:   model.NutritionPer100G{Calories: 52, ProteinG: 0.3, FatG: 0.2, CarbsG: 13.8, FiberG: 2.4},
}

func TestResolveViaToolLoop(t *testing.T) {
	gemini := &mockGemini{
		responses: []*genai.GenerateContentResponse{
			funcCallResp("search_food_database", map[string]any{"query": "apple raw"}),
			funcCallResp("get_food_nutrition", map[string]any{"fdc_id": float64(171688)}),
			textResp(`{"found": true, "fdc_id": 171688, "description": "Apples, raw, with skin",
				"match_confidence": 0.95,
				"nutrition_per_100g": {"calories": 52, "protein_g": 0.3, "fat_g": 0.2, "carbs_g": 13.8, "fiber_g": 2.4}}`),
		},
	}

	food := &mockFoodClient{
		search: func(ctx context.Context, query string, pageSize int) ([]fooddata.Candidate, error) {
			return []fooddata.Candidate{{FDCID: 171688, Description: "Apples, raw, with skin", DataType: "SR Legacy"}}, nil
		},
		getDetail: func(ctx context.Context, fdcID int64) (*fooddata.FoodDetail, error) {
			gt.Equal(t, fdcID, int64(171688))
			return appleDetail, nil
		},
	}

	resolver := analyze.NewResolver(gemini, food)
	res, err := resolver.Resolve(context.Background(), model.IdentifiedFood{
		Name:                 "apple",
		EstimatedWeightGrams: 182,
		Confidence:           0.95,
	})
	gt.NoError(t, err)

	gt.Equal(t, res.Status, model.ResolutionResolved)
	gt.Equal(t, res.Match.FDCID, int64(171688))
	gt.Equal(t, res.Match.MatchConfidence, 0.95)
	gt.Equal(t, res.Nutrition.Calories, 94.6)
	gt.Equal(t, gemini.calls, 3)
}

func TestResolveLowConfidenceFallsBackToFetchedRecord(t *testing.T) {
	gemini := &mockGemini{
		responses: []*genai.GenerateContentResponse{
			funcCallResp("get_food_nutrition", map[string]any{"fdc_id": float64(171688)}),
			textResp(`{"found": true, "fdc_id": 171688, "description": "Apples, raw, with skin", "match_confidence": 0.4}`),
		},
	}
	food := &mockFoodClient{
		getDetail: func(ctx context.Context, fdcID int64) (*fooddata.FoodDetail, error) {
			return appleDetail, nil
		},
	}

	resolver := analyze.NewResolver(gemini, food)
	res, err := resolver.Resolve(context.Background(), model.IdentifiedFood{
		Name:                 "apple",
		EstimatedWeightGrams: 100,
		Confidence:           0.9,
	})
	gt.NoError(t, err)

	gt.Equal(t, res.Status, model.ResolutionResolved)
	gt.Equal(t, res.Note, "closest available match")
	gt.Equal(t, res.Match.MatchConfidence, 0.4)
	gt.Equal(t, res.Nutrition.Calories, 52.0)
}

func TestResolveNoMatchFails(t *testing.T) {
	gemini := &mockGemini{
		responses: []*genai.GenerateContentResponse{
			textResp(`{"found": false}`),
		},
	}

	resolver := analyze.NewResolver(gemini, &mockFoodClient{})
	res, err := resolver.Resolve(context.Background(), model.IdentifiedFood{
		Name:                 "mystery dish",
		EstimatedWeightGrams: 50,
		Confidence:           0.5,
	})
	gt.NoError(t, err)

	gt.Equal(t, res.Status, model.ResolutionFailed)
	gt.Equal(t, res.Food.Name, "mystery dish")
}

func TestResolveCredentialExhaustionPropagates(t *testing.T) {
	gemini := &mockGemini{err: model.ErrAllCredentialsExhausted}

	resolver := analyze.NewResolver(gemini, &mockFoodClient{})
	_, err := resolver.Resolve(context.Background(), model.IdentifiedFood{
		Name:                 "apple",
		EstimatedWeightGrams: 100,
		Confidence:           0.9,
	})
	gt.True(t, errors.Is(err, model.ErrAllCredentialsExhausted))
}

func TestResolveIterationBudget(t *testing.T) {
	// The model never stops calling tools; the loop must cut it off
	gemini := &mockGemini{
		responses: []*genai.GenerateContentResponse{
			funcCallResp("search_food_database", map[string]any{"query": "a"}),
			funcCallResp("search_food_database", map[string]any{"query": "b"}),
			funcCallResp("search_food_database", map[string]any{"query": "c"}),
			funcCallResp("search_food_database", map[string]any{"query": "d"}),
			funcCallResp("search_food_database", map[string]any{"query": "e"}),
			funcCallResp("search_food_database", map[string]any{"query": "f"}),
		},
	}
	food := &mockFoodClient{
		search: func(ctx context.Context, query string, pageSize int) ([]fooddata.Candidate, error) {
			return nil, nil
		},
	}

	resolver := analyze.NewResolver(gemini, food, analyze.WithMaxIterations(3))
	res, err := resolver.Resolve(context.Background(), model.IdentifiedFood{
		Name:                 "apple",
		EstimatedWeightGrams: 100,
		Confidence:           0.9,
	})
	gt.NoError(t, err)

	gt.Equal(t, res.Status, model.ResolutionFailed)
	gt.Equal(t, gemini.calls, 3)
}

func TestResolveMarkdownFencedAnswer(t *testing.T) {
	gemini := &mockGemini{
		responses: []*genai.GenerateContentResponse{
			funcCallResp("get_food_nutrition", map[string]any{"fdc_id": float64(171688)}),
			textResp("Here is the result:\n```json\n{\"found\": true, \"fdc_id\": 171688, \"description\": \"Apples, raw, with skin\", \"match_confidence\": 0.9}\n```"),
		},
	}
	food := &mockFoodClient{
		getDetail: func(ctx context.Context, fdcID int64) (*fooddata.FoodDetail, error) {
			return appleDetail, nil
		},
	}

	resolver := analyze.NewResolver(gemini, food)
	res, err := resolver.Resolve(context.Background(), model.IdentifiedFood{
		Name:                 "apple",
		EstimatedWeightGrams: 150,
		Confidence:           0.9,
	})
	gt.NoError(t, err)

	gt.Equal(t, res.Status, model.ResolutionResolved)
	gt.Equal(t, res.Nutrition.Calories, 78.0)
}
