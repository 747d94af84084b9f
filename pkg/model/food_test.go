package model_test

import (
	"testing"

	"github.com/foodlens/foodlens/pkg/model"
	"github.com/m-mizutani/gt"
)

func TestScalePortionNutrition(t *testing.T) {
	// Raw apple, 52 kcal per 100g, 182g portion
	per100 := model.NutritionPer100G{
		Calories: 52,
		ProteinG: 0.3,
		FatG:     0.2,
		CarbsG:   13.8,
		FiberG:   2.4,
	}

	portion := per100.Scale(182)
	gt.Equal(t, portion.Calories, 94.6)
	gt.Equal(t, portion.ProteinG, 0.5)
	gt.Equal(t, portion.FatG, 0.4)
	gt.Equal(t, portion.CarbsG, 25.1)
	gt.Equal(t, portion.FiberG, 4.4)
}

func TestScaleRoundsToOneDecimal(t *testing.T) {
	per100 := model.NutritionPer100G{Calories: 151.37}
	gt.Equal(t, per100.Scale(100).Calories, 151.4)
	gt.Equal(t, per100.Scale(33).Calories, 50.0)
}

func TestAddAccumulates(t *testing.T) {
	total := model.NutritionPerPortion{}
	total.Add(model.NutritionPerPortion{Calories: 94.6, ProteinG: 0.5})
	total.Add(model.NutritionPerPortion{Calories: 181.2, ProteinG: 36.6})

	gt.Equal(t, total.Calories, 275.8)
	gt.Equal(t, total.ProteinG, 37.1)
}

func TestQueryTermsFallsBackToName(t *testing.T) {
	food := model.IdentifiedFood{Name: "banana"}
	gt.Equal(t, food.QueryTerms(), []string{"banana"})
}

func TestQueryTermsAppendsCookingMethod(t *testing.T) {
	food := model.IdentifiedFood{
		Name:          "chicken breast",
		CookingMethod: "grilled",
		SearchTerms:   []string{"chicken breast", "chicken"},
	}

	gt.Equal(t, food.QueryTerms(), []string{
		"chicken breast",
		"chicken",
		"chicken breast grilled",
		"chicken grilled",
	})
}

func TestQueryTermsSkipsUnknownMethod(t *testing.T) {
	food := model.IdentifiedFood{
		Name:          "apple",
		CookingMethod: "unknown",
		SearchTerms:   []string{"apple raw"},
	}
	gt.Equal(t, food.QueryTerms(), []string{"apple raw"})
}
