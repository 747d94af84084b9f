package analyze_test

import (
	"testing"

	"github.com/foodlens/foodlens/pkg/model"
	"github.com/foodlens/foodlens/pkg/usecase/analyze"
	"github.com/m-mizutani/gt"
)

func drain(ch <-chan model.Event) []model.Event {
	var events []model.Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestStreamHappyPathOrder(t *testing.T) {
	s := analyze.NewStream()

	steps := []model.Step{
		model.StepStart,
		model.StepFoodDetection,
		model.StepFoodDetectionComplete,
		model.StepPortionEstimation,
		model.StepComplete,
	}
	for _, step := range steps {
		s.Emit(model.Event{Step: step})
	}

	events := drain(s.Events())
	gt.Equal(t, len(events), 5)
	for i, ev := range events {
		gt.Equal(t, ev.Step, steps[i])
	}
}

func TestStreamDropsRegressions(t *testing.T) {
	s := analyze.NewStream()

	s.Emit(model.Event{Step: model.StepPortionEstimation})
	s.Emit(model.Event{Step: model.StepFoodDetection}) // out of order, dropped
	s.Emit(model.Event{Step: model.StepComplete})

	events := drain(s.Events())
	gt.Equal(t, len(events), 2)
	gt.Equal(t, events[0].Step, model.StepPortionEstimation)
	gt.Equal(t, events[1].Step, model.StepComplete)
}

func TestStreamAllowsProgressUpdatesWithinStep(t *testing.T) {
	s := analyze.NewStream()

	s.Emit(model.Event{Step: model.StepPortionEstimation, Progress: 50})
	s.Emit(model.Event{Step: model.StepPortionEstimation, Progress: 70})
	s.Emit(model.Event{Step: model.StepPortionEstimation, Progress: 90})
	s.Emit(model.Event{Step: model.StepComplete, Progress: 100})

	events := drain(s.Events())
	gt.Equal(t, len(events), 4)
	gt.Equal(t, events[1].Progress, 70)
}

func TestStreamErrorIsTerminal(t *testing.T) {
	s := analyze.NewStream()

	s.Emit(model.Event{Step: model.StepStart})
	s.Emit(model.Event{Step: model.StepError, Message: "boom"})
	s.Emit(model.Event{Step: model.StepComplete}) // after terminal, dropped

	events := drain(s.Events())
	gt.Equal(t, len(events), 2)
	gt.Equal(t, events[1].Step, model.StepError)
	gt.Equal(t, events[1].Message, "boom")
}

func TestStreamErrorReachableFromAnyState(t *testing.T) {
	s := analyze.NewStream()

	s.Emit(model.Event{Step: model.StepStart})
	s.Emit(model.Event{Step: model.StepFoodDetection})
	s.Emit(model.Event{Step: model.StepFoodDetectionComplete})
	s.Emit(model.Event{Step: model.StepError, Message: "late failure"})

	events := drain(s.Events())
	gt.Equal(t, events[len(events)-1].Step, model.StepError)
}
