package model

// IdentifiedFood is a single food item detected in the image by the
// vision model. It is produced once during stage 1 and never mutated
// afterwards.
type IdentifiedFood struct {
	Name                 string   `json:"name" validate:"required"`
	EstimatedWeightGrams float64  `json:"estimated_weight_grams" validate:"gt=0"`
	CookingMethod        string   `json:"cooking_method"`
	Confidence           float64  `json:"confidence" validate:"gte=0,lte=1"`
	SearchTerms          []string `json:"search_terms"`
}

// QueryTerms returns the ordered search terms to try against the food
// database, falling back to the food name when none were provided. The
// cooking method is appended as an extra variant since it often changes
// which database entry is the right match (fried vs. raw).
func (f *IdentifiedFood) QueryTerms() []string {
	terms := f.SearchTerms
	if len(terms) == 0 {
		terms = []string{f.Name}
	}

	if f.CookingMethod != "" && f.CookingMethod != "unknown" {
		enhanced := make([]string, 0, len(terms)*2)
		enhanced = append(enhanced, terms...)
		for _, t := range terms {
			enhanced = append(enhanced, t+" "+f.CookingMethod)
		}
		return enhanced
	}

	return terms
}

// NutritionMatch is the database record a resolver selected for one
// identified food.
type NutritionMatch struct {
	FDCID           int64   `json:"fdc_id"`
	Description     string  `json:"description"`
	MatchConfidence float64 `json:"match_confidence"`
}

// NutritionPer100G holds nutrient values on the database's 100g basis.
type NutritionPer100G struct {
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	FatG     float64 `json:"fat_g"`
	CarbsG   float64 `json:"carbs_g"`
	FiberG   float64 `json:"fiber_g"`
}

// NutritionPerPortion holds nutrient values scaled to the estimated
// portion weight.
type NutritionPerPortion struct {
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	FatG     float64 `json:"fat_g"`
	CarbsG   float64 `json:"carbs_g"`
	FiberG   float64 `json:"fiber_g"`
}

// Scale converts 100g-basis values to a portion of the given weight.
func (n NutritionPer100G) Scale(weightGrams float64) NutritionPerPortion {
	m := weightGrams / 100.0
	return NutritionPerPortion{
		Calories: round1(n.Calories * m),
		ProteinG: round1(n.ProteinG * m),
		FatG:     round1(n.FatG * m),
		CarbsG:   round1(n.CarbsG * m),
		FiberG:   round1(n.FiberG * m),
	}
}

// Add accumulates another portion elementwise.
func (n *NutritionPerPortion) Add(other NutritionPerPortion) {
	n.Calories = round1(n.Calories + other.Calories)
	n.ProteinG = round1(n.ProteinG + other.ProteinG)
	n.FatG = round1(n.FatG + other.FatG)
	n.CarbsG = round1(n.CarbsG + other.CarbsG)
	n.FiberG = round1(n.FiberG + other.FiberG)
}

func round1(v float64) float64 {
	if v < 0 {
		return 0
	}
	return float64(int64(v*10+0.5)) / 10
}

// ResolutionStatus is the terminal state of one food's nutrition lookup.
type ResolutionStatus string

const (
	ResolutionResolved ResolutionStatus = "resolved"
	ResolutionFailed   ResolutionStatus = "failed"
	ResolutionTimedOut ResolutionStatus = "timed_out"
)

// FoodResolution composes one identified food with the outcome of its
// nutrition lookup. Exactly one exists per identified food; it is
// written once by the worker that owns it.
type FoodResolution struct {
	Food      IdentifiedFood       `json:"food"`
	Match     *NutritionMatch      `json:"match,omitempty"`
	Nutrition *NutritionPerPortion `json:"nutrition,omitempty"`
	Status    ResolutionStatus     `json:"status"`
	Note      string               `json:"note,omitempty"`
}
