package fooddata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/foodlens/foodlens/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

const offBaseURL = "https://world.openfoodfacts.org"

// OpenFoodFactsClient looks up products in the Open Food Facts
// database. The API is unauthenticated, but calls still go through the
// shared retry policy.
type OpenFoodFactsClient struct {
	httpClient *http.Client
	baseURL    string
}

type OFFOption func(*OpenFoodFactsClient)

// WithOFFBaseURL overrides the endpoint, for tests.
func WithOFFBaseURL(u string) OFFOption {
	return func(c *OpenFoodFactsClient) {
		c.baseURL = u
	}
}

// NewOpenFoodFacts creates an Open Food Facts client.
func NewOpenFoodFacts(opts ...OFFOption) *OpenFoodFactsClient {
	c := &OpenFoodFactsClient{
		httpClient: newHTTPClient(),
		baseURL:    offBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *OpenFoodFactsClient) Source() model.DataSource {
	return model.SourceOpenFoodFacts
}

// Nutriment values arrive as numbers or strings depending on the
// product, so decode through json.Number.
type offProductResponse struct {
	Status  json.Number `json:"status"`
	Product struct {
		ProductName string `json:"product_name"`
		Brands      string `json:"brands"`
		Ingredients string `json:"ingredients_text"`
		Nutriments  struct {
			EnergyKcal100g json.Number `json:"energy-kcal_100g"`
			Proteins100g   json.Number `json:"proteins_100g"`
			Fat100g        json.Number `json:"fat_100g"`
			Carbs100g      json.Number `json:"carbohydrates_100g"`
			Fiber100g      json.Number `json:"fiber_100g"`
		} `json:"nutriments"`
		ServingSize string `json:"serving_size"`
	} `json:"product"`
}

// SearchByBarcode fetches /api/v2/product/{code}. An unknown product is
// an empty result, not an error.
func (c *OpenFoodFactsClient) SearchByBarcode(ctx context.Context, code string) ([]model.ProductRecord, error) {
	var out offProductResponse

	err := doWithRetry(ctx, func() error {
		url := fmt.Sprintf("%s/api/v2/product/%s.json", c.baseURL, code)
		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return goerr.Wrap(err, "failed to create request")
		}
		req.Header.Set("User-Agent", "foodlens/1.0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return transient(goerr.Wrap(err, "open food facts request failed"))
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			// product unknown to OFF
			return nil

		case resp.StatusCode == http.StatusTooManyRequests:
			return goerr.Wrap(model.ErrRateLimited, "open food facts rate limited")

		case resp.StatusCode >= 500:
			return transient(goerr.New("open food facts server error", goerr.V("status", resp.StatusCode)))

		case resp.StatusCode != http.StatusOK:
			return goerr.New("open food facts returned error", goerr.V("status", resp.StatusCode))
		}

		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return goerr.Wrap(err, "failed to decode open food facts response")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s, _ := out.Status.Int64(); s != 1 || out.Product.ProductName == "" {
		return nil, nil
	}

	rec := model.ProductRecord{
		DataSource:  model.SourceOpenFoodFacts,
		Barcode:     code,
		Name:        out.Product.ProductName,
		Brand:       out.Product.Brands,
		Ingredients: out.Product.Ingredients,
		ServingSize: out.Product.ServingSize,
		Nutrition: model.NutritionPer100G{
			Calories: numberOr0(out.Product.Nutriments.EnergyKcal100g),
			ProteinG: numberOr0(out.Product.Nutriments.Proteins100g),
			FatG:     numberOr0(out.Product.Nutriments.Fat100g),
			CarbsG:   numberOr0(out.Product.Nutriments.Carbs100g),
			FiberG:   numberOr0(out.Product.Nutriments.Fiber100g),
		},
	}
	return []model.ProductRecord{rec}, nil
}

func numberOr0(n json.Number) float64 {
	v, err := n.Float64()
	if err != nil {
		return 0
	}
	return v
}
