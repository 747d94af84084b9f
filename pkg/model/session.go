package model

import (
	"time"

	"github.com/google/uuid"
)

type SessionID string

// NewSessionID generates a new unique SessionID
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

// SessionStatus is the lifecycle state of an analysis session.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// Terminal reports whether the session can no longer change.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// AnalysisSession is the root aggregate of one image analysis. Stage1
// and Stage2 always have equal length: every identified food gets
// exactly one resolution record, whatever its outcome.
type AnalysisSession struct {
	ID       SessionID `json:"id" firestore:"id"`
	ImageRef string    `json:"image_ref" firestore:"image_ref"`

	Stage1  []IdentifiedFood `json:"stage_1" firestore:"stage_1"`
	Stage2  []FoodResolution `json:"stage_2" firestore:"stage_2"`
	Barcode []ProductRecord  `json:"barcode,omitempty" firestore:"barcode,omitempty"`

	TotalNutrition NutritionPerPortion `json:"total_nutrition" firestore:"total_nutrition"`
	Status         SessionStatus       `json:"status" firestore:"status"`
	SuccessRate    float64             `json:"success_rate" firestore:"success_rate"`
	Error          string              `json:"error,omitempty" firestore:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at" firestore:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" firestore:"completed_at,omitempty"`
}

// ResolvedCount counts stage-2 entries that got nutrition data.
func (s *AnalysisSession) ResolvedCount() int {
	n := 0
	for _, r := range s.Stage2 {
		if r.Status == ResolutionResolved {
			n++
		}
	}
	return n
}
