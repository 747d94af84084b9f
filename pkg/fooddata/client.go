package fooddata

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"time"

	"github.com/foodlens/foodlens/pkg/model"
	"github.com/foodlens/foodlens/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

const (
	// DefaultPageSize is the search page size when the caller passes 0.
	DefaultPageSize = 25
	// MaxPageSize caps the search page size.
	MaxPageSize = 100

	maxAttempts = 3
)

// backoffSchedule is the base delay before each retry; actual sleep
// adds up to 50% jitter.
var backoffSchedule = []time.Duration{100 * time.Millisecond, 400 * time.Millisecond, 1600 * time.Millisecond}

// Candidate is a search hit descriptor, trimmed to what the resolver
// needs to pick a record.
type Candidate struct {
	FDCID       int64  `json:"fdc_id"`
	Description string `json:"description"`
	DataType    string `json:"data_type"`
	BrandOwner  string `json:"brand_owner,omitempty"`
}

// FoodDetail is a full nutrition record on the database's 100g basis.
type FoodDetail struct {
	FDCID       int64                  `json:"fdc_id"`
	Description string                 `json:"description"`
	DataType    string                 `json:"data_type"`
	Nutrition   model.NutritionPer100G `json:"nutrition_per_100g"`
}

// Client is the search/detail surface the resolver agents use.
type Client interface {
	Search(ctx context.Context, query string, pageSize int) ([]Candidate, error)
	GetDetail(ctx context.Context, fdcID int64) (*FoodDetail, error)
}

// BarcodeSearcher looks up packaged products by barcode in one source.
type BarcodeSearcher interface {
	Source() model.DataSource
	SearchByBarcode(ctx context.Context, code string) ([]model.ProductRecord, error)
}

// ClampPageSize applies the default and the [1, MaxPageSize] bound.
func ClampPageSize(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

// doWithRetry runs fn up to maxAttempts times, sleeping the jittered
// backoff schedule between attempts. Only transient errors are retried;
// rate limits are surfaced immediately so the caller can decide whether
// to rotate credentials or abandon.
func doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			base := backoffSchedule[attempt-1]
			jitter := time.Duration(rand.Int63n(int64(base) / 2))
			select {
			case <-time.After(base + jitter):
			case <-ctx.Done():
				return goerr.Wrap(ctx.Err(), "canceled while backing off")
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, model.ErrRateLimited) || !isTransient(err) {
			return err
		}

		logging.From(ctx).Debug("retrying food database call",
			"attempt", attempt+1, "error", err)
		lastErr = err
	}

	return goerr.Wrap(lastErr, "retries exhausted", goerr.V("attempts", maxAttempts))
}

// transientError wraps network and 5xx failures so doWithRetry can tell
// them apart from terminal ones.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func transient(err error) error {
	return &transientError{err: err}
}

func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
	}
}
