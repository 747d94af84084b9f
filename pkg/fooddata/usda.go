package fooddata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/foodlens/foodlens/pkg/credential"
	"github.com/foodlens/foodlens/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// CapabilityUSDA is the credential pool name for FoodData Central.
const CapabilityUSDA = "usda"

const usdaBaseURL = "https://api.nal.usda.gov/fdc/v1"

// Nutrient IDs on FoodData Central's 100g basis.
var usdaNutrients = map[int64]func(*model.NutritionPer100G, float64){
	1008: func(n *model.NutritionPer100G, v float64) { n.Calories = v },
	1003: func(n *model.NutritionPer100G, v float64) { n.ProteinG = v },
	1004: func(n *model.NutritionPer100G, v float64) { n.FatG = v },
	1005: func(n *model.NutritionPer100G, v float64) { n.CarbsG = v },
	1079: func(n *model.NutritionPer100G, v float64) { n.FiberG = v },
}

// USDAClient is the FoodData Central transport. Every call draws a
// credential from the rotator; 429 responses are reported back and
// surfaced as ErrRateLimited.
type USDAClient struct {
	rotator    *credential.Rotator
	httpClient *http.Client
	baseURL    string
}

type USDAOption func(*USDAClient)

// WithUSDABaseURL overrides the endpoint, for tests.
func WithUSDABaseURL(u string) USDAOption {
	return func(c *USDAClient) {
		c.baseURL = u
	}
}

// NewUSDA creates a FoodData Central client.
func NewUSDA(rotator *credential.Rotator, opts ...USDAOption) *USDAClient {
	c := &USDAClient{
		rotator:    rotator,
		httpClient: newHTTPClient(),
		baseURL:    usdaBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *USDAClient) Source() model.DataSource {
	return model.SourceUSDA
}

type usdaSearchResponse struct {
	TotalHits int `json:"totalHits"`
	Foods     []struct {
		FDCID       int64  `json:"fdcId"`
		Description string `json:"description"`
		DataType    string `json:"dataType"`
		BrandOwner  string `json:"brandOwner"`
		GTINUPC     string `json:"gtinUpc"`
		Nutrients   []struct {
			NutrientID int64   `json:"nutrientId"`
			Value      float64 `json:"value"`
		} `json:"foodNutrients"`
	} `json:"foods"`
}

// Search queries /foods/search. pageSize defaults to 25 and is clamped
// to [1,100].
func (c *USDAClient) Search(ctx context.Context, query string, pageSize int) ([]Candidate, error) {
	var out usdaSearchResponse
	params := url.Values{
		"query":     {query},
		"pageSize":  {strconv.Itoa(ClampPageSize(pageSize))},
		"sortBy":    {"dataType.keyword"},
		"sortOrder": {"asc"},
	}

	if err := c.get(ctx, "/foods/search", params, &out); err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(out.Foods))
	for _, f := range out.Foods {
		candidates = append(candidates, Candidate{
			FDCID:       f.FDCID,
			Description: f.Description,
			DataType:    f.DataType,
			BrandOwner:  f.BrandOwner,
		})
	}
	return candidates, nil
}

type usdaDetailResponse struct {
	FDCID       int64  `json:"fdcId"`
	Description string `json:"description"`
	DataType    string `json:"dataType"`
	Nutrients   []struct {
		Nutrient struct {
			ID int64 `json:"id"`
		} `json:"nutrient"`
		Amount float64 `json:"amount"`
	} `json:"foodNutrients"`
}

// GetDetail fetches the full nutrition record for an FDC ID.
func (c *USDAClient) GetDetail(ctx context.Context, fdcID int64) (*FoodDetail, error) {
	var out usdaDetailResponse
	if err := c.get(ctx, fmt.Sprintf("/food/%d", fdcID), url.Values{}, &out); err != nil {
		return nil, err
	}

	detail := &FoodDetail{
		FDCID:       out.FDCID,
		Description: out.Description,
		DataType:    out.DataType,
	}
	for _, n := range out.Nutrients {
		if set, ok := usdaNutrients[n.Nutrient.ID]; ok {
			set(&detail.Nutrition, n.Amount)
		}
	}
	return detail, nil
}

// SearchByBarcode looks for branded foods whose GTIN/UPC matches the
// code. FoodData Central has no dedicated barcode endpoint, so this is
// a search filtered on gtinUpc equality or a description containing the
// code, matching the source service's leniency.
func (c *USDAClient) SearchByBarcode(ctx context.Context, code string) ([]model.ProductRecord, error) {
	var out usdaSearchResponse
	params := url.Values{
		"query":    {code},
		"pageSize": {"10"},
	}
	if err := c.get(ctx, "/foods/search", params, &out); err != nil {
		return nil, err
	}

	var records []model.ProductRecord
	for _, f := range out.Foods {
		if f.GTINUPC != code && !strings.Contains(f.Description, code) {
			continue
		}

		rec := model.ProductRecord{
			DataSource: model.SourceUSDA,
			Barcode:    code,
			Name:       f.Description,
			Brand:      f.BrandOwner,
			FDCID:      f.FDCID,
		}
		for _, n := range f.Nutrients {
			if set, ok := usdaNutrients[n.NutrientID]; ok {
				set(&rec.Nutrition, n.Value)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func (c *USDAClient) get(ctx context.Context, path string, params url.Values, out any) error {
	return doWithRetry(ctx, func() error {
		cred, err := c.rotator.Acquire(CapabilityUSDA)
		if err != nil {
			return err
		}

		params.Set("api_key", cred.Secret)
		req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path+"?"+params.Encode(), nil)
		if err != nil {
			return goerr.Wrap(err, "failed to create request")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return transient(goerr.Wrap(err, "usda request failed"))
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			c.rotator.ReportFailure(cred, credential.FailureRateLimited)
			return goerr.Wrap(model.ErrRateLimited, "usda rate limited")

		case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
			c.rotator.ReportFailure(cred, credential.FailureAuth)
			return goerr.New("usda rejected credential", goerr.V("status", resp.StatusCode))

		case resp.StatusCode >= 500:
			c.rotator.ReportFailure(cred, credential.FailureTransient)
			return transient(goerr.New("usda server error", goerr.V("status", resp.StatusCode)))

		case resp.StatusCode != http.StatusOK:
			body, _ := io.ReadAll(resp.Body)
			return goerr.New("usda returned error",
				goerr.V("status", resp.StatusCode),
				goerr.V("body", string(body)))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return goerr.Wrap(err, "failed to decode usda response")
		}

		c.rotator.ReportSuccess(cred)
		return nil
	})
}
