package analyze_test

import (
	"context"
	"testing"
	"time"

	"github.com/foodlens/foodlens/pkg/adapter"
	"github.com/foodlens/foodlens/pkg/model"
	"github.com/foodlens/foodlens/pkg/repository"
	"github.com/foodlens/foodlens/pkg/usecase/analyze"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

type mockImageSource struct{}

func (m *mockImageSource) Fetch(ctx context.Context, ref string) (*adapter.Image, error) {
	return &adapter.Image{Data: []byte("jpeg-bytes"), MIMEType: "image/jpeg"}, nil
}

func newTestUseCase(gemini *mockGemini, resolver analyze.FoodResolver, repo repository.Repository) *analyze.UseCase {
	return analyze.New(
		analyze.NewIdentifier(gemini),
		analyze.NewScheduler(resolver),
		&mockImageSource{},
		analyze.WithRepository(repo),
	)
}

func TestFullAnalysisFlow(t *testing.T) {
	gemini := &mockGemini{
		responses: []*genai.GenerateContentResponse{
			textResp(`{"foods": [
				{"name": "apple", "estimated_weight_grams": 182, "confidence": 0.95},
				{"name": "rice", "estimated_weight_grams": 150, "confidence": 0.9}
			]}`),
		},
	}

	resolver := &mockResolver{
		resolve: func(ctx context.Context, food model.IdentifiedFood) (model.FoodResolution, error) {
			if food.Name == "rice" {
				return model.FoodResolution{Food: food, Status: model.ResolutionFailed, Note: "no match"}, nil
			}
			nutrition := model.NutritionPer100G{Calories: 52}.Scale(food.EstimatedWeightGrams)
			return model.FoodResolution{
				Food:      food,
				Match:     &model.NutritionMatch{FDCID: 171688, Description: "Apples, raw", MatchConfidence: 0.95},
				Nutrition: &nutrition,
				Status:    model.ResolutionResolved,
			}, nil
		},
	}

	repo := repository.NewMemory()
	uc := newTestUseCase(gemini, resolver, repo)

	id, err := uc.StartAnalysis(context.Background(), "meal.jpg")
	gt.NoError(t, err)

	events, err := uc.Subscribe(id)
	gt.NoError(t, err)

	var steps []model.Step
	for ev := range events {
		if len(steps) == 0 || steps[len(steps)-1] != ev.Step {
			steps = append(steps, ev.Step)
		}
	}

	gt.Equal(t, steps[0], model.StepStart)
	gt.Equal(t, steps[len(steps)-1], model.StepComplete)

	session, err := uc.GetResult(context.Background(), id)
	gt.NoError(t, err)

	gt.Equal(t, session.Status, model.SessionCompleted)
	gt.Equal(t, len(session.Stage1), 2)
	gt.Equal(t, len(session.Stage2), len(session.Stage1))
	gt.Equal(t, session.SuccessRate, 0.5)
	gt.Equal(t, session.TotalNutrition.Calories, 94.6)
	gt.V(t, session.CompletedAt).NotNil()

	// The session survived into the repository as well
	persisted, err := repo.GetSession(context.Background(), id)
	gt.NoError(t, err)
	gt.Equal(t, persisted.Status, model.SessionCompleted)
}

func TestIdentificationFailureFailsSession(t *testing.T) {
	gemini := &mockGemini{
		responses: []*genai.GenerateContentResponse{
			textResp("not json"),
			textResp("not json"),
			textResp("not json"),
		},
	}

	uc := newTestUseCase(gemini, &mockResolver{}, repository.NewMemory())

	id, err := uc.StartAnalysis(context.Background(), "meal.jpg")
	gt.NoError(t, err)

	events, err := uc.Subscribe(id)
	gt.NoError(t, err)

	var last model.Event
	for ev := range events {
		last = ev
	}
	gt.Equal(t, last.Step, model.StepError)

	session, err := uc.GetResult(context.Background(), id)
	gt.NoError(t, err)
	gt.Equal(t, session.Status, model.SessionFailed)
	gt.S(t, session.Error).Contains("identification")
	gt.Equal(t, len(session.Stage2), 0)
}

func TestExhaustionBeforeStage2FailsSession(t *testing.T) {
	gemini := &mockGemini{
		responses: []*genai.GenerateContentResponse{
			textResp(`{"foods": [{"name": "apple", "estimated_weight_grams": 100, "confidence": 0.9}]}`),
		},
	}
	resolver := &mockResolver{
		resolve: func(ctx context.Context, food model.IdentifiedFood) (model.FoodResolution, error) {
			return model.FoodResolution{}, model.ErrAllCredentialsExhausted
		},
	}

	uc := newTestUseCase(gemini, resolver, repository.NewMemory())

	id, err := uc.StartAnalysis(context.Background(), "meal.jpg")
	gt.NoError(t, err)

	events, err := uc.Subscribe(id)
	gt.NoError(t, err)

	var last model.Event
	for ev := range events {
		last = ev
	}
	gt.Equal(t, last.Step, model.StepError)

	session, err := uc.GetResult(context.Background(), id)
	gt.NoError(t, err)
	gt.Equal(t, session.Status, model.SessionFailed)
	gt.S(t, session.Error).Contains("credentials exhausted")
}

func TestGetResultUnknownSession(t *testing.T) {
	uc := newTestUseCase(&mockGemini{}, &mockResolver{}, repository.NewMemory())

	_, err := uc.GetResult(context.Background(), model.SessionID("missing"))
	gt.Error(t, err)
}

func TestSubscribeUnknownSession(t *testing.T) {
	uc := newTestUseCase(&mockGemini{}, &mockResolver{}, repository.NewMemory())

	_, err := uc.Subscribe(model.SessionID("missing"))
	gt.Error(t, err)
}

func TestConcurrentAnalyses(t *testing.T) {
	mk := func() *mockGemini {
		return &mockGemini{
			responses: []*genai.GenerateContentResponse{
				textResp(`{"foods": [{"name": "apple", "estimated_weight_grams": 100, "confidence": 0.9}]}`),
			},
		}
	}
	resolver := &mockResolver{
		resolve: func(ctx context.Context, food model.IdentifiedFood) (model.FoodResolution, error) {
			return model.FoodResolution{Food: food, Status: model.ResolutionResolved}, nil
		},
	}

	uc := newTestUseCase(mk(), resolver, repository.NewMemory())

	id1, err := uc.StartAnalysis(context.Background(), "a.jpg")
	gt.NoError(t, err)

	ev1, err := uc.Subscribe(id1)
	gt.NoError(t, err)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ev1:
			if !ok {
				session, err := uc.GetResult(context.Background(), id1)
				gt.NoError(t, err)
				gt.True(t, session.Status.Terminal())
				return
			}
		case <-deadline:
			t.Fatal("analysis did not finish in time")
		}
	}
}
