package analyze

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/foodlens/foodlens/pkg/model"
	"github.com/foodlens/foodlens/pkg/utils/logging"
	"go.uber.org/atomic"
)

// FoodResolver resolves nutrition data for a single identified food.
type FoodResolver interface {
	Resolve(ctx context.Context, food model.IdentifiedFood) (model.FoodResolution, error)
}

// Scheduler fans identified foods out to a bounded pool of resolver
// workers. Each food writes its result into a reserved slot, so the
// output is index-aligned with the input regardless of completion
// order and always has the same length.
type Scheduler struct {
	resolver       FoodResolver
	maxConcurrent  int
	perFoodTimeout time.Duration
}

type SchedulerOption func(*Scheduler)

func WithMaxConcurrent(n int) SchedulerOption {
	return func(x *Scheduler) {
		if n > 0 {
			x.maxConcurrent = n
		}
	}
}

func WithPerFoodTimeout(d time.Duration) SchedulerOption {
	return func(x *Scheduler) {
		if d > 0 {
			x.perFoodTimeout = d
		}
	}
}

// NewScheduler creates a scheduler over the given resolver.
func NewScheduler(resolver FoodResolver, opts ...SchedulerOption) *Scheduler {
	x := &Scheduler{
		resolver:       resolver,
		maxConcurrent:  5,
		perFoodTimeout: 45 * time.Second,
	}

	for _, opt := range opts {
		opt(x)
	}

	return x
}

// ResolveAll resolves every food concurrently. A food that fails or
// times out still occupies its slot with the corresponding status; the
// returned error is non-nil only when credential exhaustion hits before
// any food has finished, meaning no stage-2 work can succeed at all.
// Exhaustion mid-batch degrades just the affected food.
func (x *Scheduler) ResolveAll(ctx context.Context, foods []model.IdentifiedFood, onProgress func(done, total int)) ([]model.FoodResolution, error) {
	results := make([]model.FoodResolution, len(foods))
	if len(foods) == 0 {
		return results, nil
	}

	sem := make(chan struct{}, x.maxConcurrent)
	completed := atomic.NewInt64(0)

	var fatalOnce sync.Once
	var fatal error

	var wg sync.WaitGroup
	for i := range foods {
		wg.Add(1)
		go func(idx int, food model.IdentifiedFood) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			fctx, cancel := context.WithTimeout(ctx, x.perFoodTimeout)
			defer cancel()

			res, err := x.resolver.Resolve(fctx, food)
			if err != nil {
				if errors.Is(err, model.ErrAllCredentialsExhausted) && completed.Load() == 0 {
					fatalOnce.Do(func() { fatal = err })
				}
				res = model.FoodResolution{
					Food:   food,
					Status: model.ResolutionFailed,
					Note:   err.Error(),
				}
			}

			// Deadline and explicit cancellation both count as timed out.
			if res.Status != model.ResolutionResolved && fctx.Err() != nil {
				res.Status = model.ResolutionTimedOut
				if res.Note == "" {
					res.Note = "resolution timed out"
				}
			}

			results[idx] = res

			done := completed.Inc()
			logging.From(ctx).Debug("food resolution finished",
				"food", food.Name, "status", res.Status,
				"done", done, "total", len(foods))
			if onProgress != nil {
				onProgress(int(done), len(foods))
			}
		}(i, foods[i])
	}

	wg.Wait()
	return results, fatal
}
