package model

import "encoding/json"

// Step is a progress stream state. Transitions are emitted exactly once
// and strictly in declaration order on the happy path; StepError is an
// alternate terminal reachable from any state.
type Step string

const (
	StepStart                 Step = "start"
	StepFoodDetection         Step = "food_detection"
	StepFoodDetectionComplete Step = "food_detection_complete"
	StepPortionEstimation     Step = "portion_estimation"
	StepComplete              Step = "complete"
	StepError                 Step = "error"
)

// Rank returns the position of the step in the happy path, or -1 for
// the error terminal.
func (s Step) Rank() int {
	switch s {
	case StepStart:
		return 0
	case StepFoodDetection:
		return 1
	case StepFoodDetectionComplete:
		return 2
	case StepPortionEstimation:
		return 3
	case StepComplete:
		return 4
	default:
		return -1
	}
}

// Event is one progress notification, serialized as a single JSON
// object per state transition. Terminal events carry the session
// snapshot; its fields (stage_1, stage_2, totals) appear as top-level
// keys of the serialized event.
type Event struct {
	Step     Step             `json:"step"`
	Message  string           `json:"message,omitempty"`
	Progress int              `json:"progress,omitempty"`
	Foods    []IdentifiedFood `json:"foods,omitempty"`
	Session  *AnalysisSession `json:"-"`
	Success  *bool            `json:"success,omitempty"`
}

// MarshalJSON inlines the session snapshot so consumers read stage_1
// and stage_2 at the top level of terminal events. Event keys win on
// collision.
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event

	eventRaw, err := json.Marshal(plain(e))
	if err != nil {
		return nil, err
	}
	if e.Session == nil {
		return eventRaw, nil
	}

	sessionRaw, err := json.Marshal(e.Session)
	if err != nil {
		return nil, err
	}

	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(sessionRaw, &merged); err != nil {
		return nil, err
	}
	overlay := map[string]json.RawMessage{}
	if err := json.Unmarshal(eventRaw, &overlay); err != nil {
		return nil, err
	}
	for k, v := range overlay {
		merged[k] = v
	}

	return json.Marshal(merged)
}
