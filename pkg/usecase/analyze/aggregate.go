package analyze

import (
	"time"

	"github.com/foodlens/foodlens/pkg/model"
)

// Aggregate finalizes a session after stage 2. Totals sum only the
// resolved foods; unresolved ones contribute nothing but still count
// in the success-rate denominator. A session where every lookup failed
// still completes.
func Aggregate(s *model.AnalysisSession, now time.Time) {
	var total model.NutritionPerPortion
	for _, r := range s.Stage2 {
		if r.Status == model.ResolutionResolved && r.Nutrition != nil {
			total.Add(*r.Nutrition)
		}
	}

	s.TotalNutrition = total
	if len(s.Stage2) > 0 {
		s.SuccessRate = float64(s.ResolvedCount()) / float64(len(s.Stage2))
	} else {
		s.SuccessRate = 0
	}

	s.Status = model.SessionCompleted
	completedAt := now
	s.CompletedAt = &completedAt
}
