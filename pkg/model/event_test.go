package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/foodlens/foodlens/pkg/model"
	"github.com/m-mizutani/gt"
)

func TestEventMarshalPlain(t *testing.T) {
	ev := model.Event{
		Step:     model.StepFoodDetection,
		Message:  "identifying foods",
		Progress: 10,
	}

	raw, err := json.Marshal(ev)
	gt.NoError(t, err)

	var m map[string]any
	gt.NoError(t, json.Unmarshal(raw, &m))

	gt.Equal(t, m["step"], "food_detection")
	gt.Equal(t, m["message"], "identifying foods")
	_, hasStage2 := m["stage_2"]
	gt.True(t, !hasStage2)
}

func TestEventMarshalTerminalInlinesSession(t *testing.T) {
	success := true
	ev := model.Event{
		Step:     model.StepComplete,
		Message:  "analysis complete",
		Progress: 100,
		Success:  &success,
		Session: &model.AnalysisSession{
			ID:       model.SessionID("abc"),
			ImageRef: "meal.jpg",
			Stage1: []model.IdentifiedFood{
				{Name: "apple", EstimatedWeightGrams: 182, Confidence: 0.95},
			},
			Stage2: []model.FoodResolution{
				{Status: model.ResolutionResolved},
			},
			Status:      model.SessionCompleted,
			SuccessRate: 1.0,
			CreatedAt:   time.Now(),
		},
	}

	raw, err := json.Marshal(ev)
	gt.NoError(t, err)

	var m map[string]any
	gt.NoError(t, json.Unmarshal(raw, &m))

	// session fields appear as top-level keys, not nested
	_, hasSession := m["session"]
	gt.True(t, !hasSession)
	gt.Equal(t, m["id"], "abc")
	gt.Equal(t, m["status"], "completed")
	gt.A(t, m["stage_1"].([]any)).Length(1)
	gt.A(t, m["stage_2"].([]any)).Length(1)

	// event keys win
	gt.Equal(t, m["step"], "complete")
	gt.Equal(t, m["success"], true)
}

func TestEventMarshalErrorTerminal(t *testing.T) {
	success := false
	ev := model.Event{
		Step:    model.StepError,
		Message: "boom",
		Success: &success,
		Session: &model.AnalysisSession{
			ID:     model.SessionID("bad"),
			Status: model.SessionFailed,
			Error:  "boom",
		},
	}

	raw, err := json.Marshal(ev)
	gt.NoError(t, err)

	var m map[string]any
	gt.NoError(t, json.Unmarshal(raw, &m))

	gt.Equal(t, m["step"], "error")
	gt.Equal(t, m["status"], "failed")
	gt.Equal(t, m["error"], "boom")
	gt.Equal(t, m["success"], false)
}
