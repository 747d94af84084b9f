package model

// DataSource tags which food database a product record came from.
type DataSource string

const (
	SourceUSDA          DataSource = "usda"
	SourceOpenFoodFacts DataSource = "open_food_facts"
)

// ProductRecord is a packaged-food product resolved from a barcode.
// One record exists per source that knew the barcode; records are never
// deduplicated across sources, the caller picks its preference order.
type ProductRecord struct {
	DataSource  DataSource       `json:"data_source"`
	Barcode     string           `json:"barcode"`
	Name        string           `json:"name"`
	Brand       string           `json:"brand,omitempty"`
	FDCID       int64            `json:"fdc_id,omitempty"`
	Ingredients string           `json:"ingredients,omitempty"`
	Nutrition   NutritionPer100G `json:"nutrition_per_100g"`
	ServingSize string           `json:"serving_size,omitempty"`
}
