package analyze

import (
	"context"
	"sync"
	"time"

	"github.com/foodlens/foodlens/pkg/adapter"
	"github.com/foodlens/foodlens/pkg/barcode"
	"github.com/foodlens/foodlens/pkg/fooddata"
	"github.com/foodlens/foodlens/pkg/model"
	"github.com/foodlens/foodlens/pkg/repository"
	"github.com/foodlens/foodlens/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// UseCase orchestrates a full image analysis: stage-1 identification,
// stage-2 nutrition resolution, the barcode side path, and aggregation.
// It owns the in-flight session registry and the progress streams.
type UseCase struct {
	identifier *Identifier
	scheduler  *Scheduler
	images     adapter.ImageSource
	detector   *barcode.Detector
	products   *fooddata.ProductLookup
	repo       repository.Repository

	mu       sync.RWMutex
	sessions map[model.SessionID]*model.AnalysisSession
	streams  map[model.SessionID]*Stream
}

type Option func(*UseCase)

// WithBarcodeLookup enables the packaged-product side path: barcodes
// found in the image are resolved to product records alongside stage 2.
func WithBarcodeLookup(detector *barcode.Detector, products *fooddata.ProductLookup) Option {
	return func(u *UseCase) {
		u.detector = detector
		u.products = products
	}
}

func WithRepository(repo repository.Repository) Option {
	return func(u *UseCase) {
		u.repo = repo
	}
}

// New creates the analysis use case.
func New(identifier *Identifier, scheduler *Scheduler, images adapter.ImageSource, opts ...Option) *UseCase {
	u := &UseCase{
		identifier: identifier,
		scheduler:  scheduler,
		images:     images,
		repo:       repository.NewMemory(),
		sessions:   make(map[model.SessionID]*model.AnalysisSession),
		streams:    make(map[model.SessionID]*Stream),
	}

	for _, opt := range opts {
		opt(u)
	}

	return u
}

// StartAnalysis registers a new session and runs the pipeline in the
// background. The passed context governs the whole run; canceling it
// aborts the analysis.
func (u *UseCase) StartAnalysis(ctx context.Context, imageRef string) (model.SessionID, error) {
	session := &model.AnalysisSession{
		ID:        model.NewSessionID(),
		ImageRef:  imageRef,
		Status:    model.SessionPending,
		CreatedAt: time.Now(),
	}
	stream := NewStream()

	u.mu.Lock()
	u.sessions[session.ID] = session
	u.streams[session.ID] = stream
	u.mu.Unlock()

	go u.run(ctx, session, stream)

	return session.ID, nil
}

// Subscribe returns the progress event channel of a session. Only one
// consumer per session is supported.
func (u *UseCase) Subscribe(id model.SessionID) (<-chan model.Event, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	stream, ok := u.streams[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrSessionNotFound, "no active session", goerr.V("id", id))
	}
	return stream.Events(), nil
}

// GetResult returns a session by ID, falling back to the repository
// for sessions that finished in an earlier process.
func (u *UseCase) GetResult(ctx context.Context, id model.SessionID) (*model.AnalysisSession, error) {
	u.mu.RLock()
	session, ok := u.sessions[id]
	u.mu.RUnlock()
	if ok {
		copied := *session
		return &copied, nil
	}

	return u.repo.GetSession(ctx, id)
}

// ListResults pages through persisted sessions, newest first.
func (u *UseCase) ListResults(ctx context.Context, offset, limit int) ([]*model.AnalysisSession, error) {
	return u.repo.ListSessions(ctx, offset, limit)
}

func (u *UseCase) run(ctx context.Context, session *model.AnalysisSession, stream *Stream) {
	logger := logging.From(ctx).With("session", session.ID)
	ctx = logging.With(ctx, logger)

	u.setStatus(session, model.SessionRunning)
	stream.Emit(model.Event{Step: model.StepStart, Message: "analysis started", Progress: 0})

	img, err := u.images.Fetch(ctx, session.ImageRef)
	if err != nil {
		u.fail(ctx, session, stream, goerr.Wrap(err, "failed to load image"))
		return
	}

	// The barcode path never fails the session; products arrive on the
	// channel whenever the lookups finish.
	productCh := u.lookupBarcodes(ctx, img)

	stream.Emit(model.Event{Step: model.StepFoodDetection, Message: "identifying foods", Progress: 10})

	foods, err := u.identifier.Identify(ctx, img)
	if err != nil {
		u.fail(ctx, session, stream, err)
		return
	}
	u.update(session, func(s *model.AnalysisSession) { s.Stage1 = foods })

	stream.Emit(model.Event{
		Step:     model.StepFoodDetectionComplete,
		Message:  "food identification complete",
		Progress: 40,
		Foods:    foods,
	})

	stream.Emit(model.Event{Step: model.StepPortionEstimation, Message: "resolving nutrition data", Progress: 50})

	resolutions, err := u.scheduler.ResolveAll(ctx, foods, func(done, total int) {
		stream.Emit(model.Event{
			Step:     model.StepPortionEstimation,
			Message:  "resolving nutrition data",
			Progress: 50 + done*45/total,
		})
	})
	u.update(session, func(s *model.AnalysisSession) { s.Stage2 = resolutions })
	if err != nil {
		u.fail(ctx, session, stream, err)
		return
	}

	if productCh != nil {
		select {
		case products := <-productCh:
			u.update(session, func(s *model.AnalysisSession) { s.Barcode = products })
		case <-ctx.Done():
		}
	}

	u.update(session, func(s *model.AnalysisSession) { Aggregate(s, time.Now()) })
	u.persist(ctx, session)

	success := true
	stream.Emit(model.Event{
		Step:     model.StepComplete,
		Message:  "analysis complete",
		Progress: 100,
		Session:  u.snapshot(session),
		Success:  &success,
	})
}

// lookupBarcodes detects barcodes in the image and resolves the
// food-plausible ones to product records.
func (u *UseCase) lookupBarcodes(ctx context.Context, img *adapter.Image) <-chan []model.ProductRecord {
	if u.detector == nil || u.products == nil {
		return nil
	}

	ch := make(chan []model.ProductRecord, 1)
	go func() {
		defer close(ch)

		var products []model.ProductRecord
		for _, det := range u.detector.Detect(ctx, img.Data) {
			if !det.IsFoodBarcode {
				continue
			}
			recs, err := u.products.SearchByBarcode(ctx, det.Data)
			if err != nil {
				logging.From(ctx).Warn("barcode lookup failed",
					"barcode", det.Data, "error", err)
				continue
			}
			products = append(products, recs...)
		}
		ch <- products
	}()
	return ch
}

func (u *UseCase) fail(ctx context.Context, session *model.AnalysisSession, stream *Stream, err error) {
	logging.From(ctx).Error("analysis failed", "error", err)

	u.update(session, func(s *model.AnalysisSession) {
		s.Status = model.SessionFailed
		s.Error = err.Error()
		completedAt := time.Now()
		s.CompletedAt = &completedAt
	})
	u.persist(ctx, session)

	success := false
	stream.Emit(model.Event{
		Step:    model.StepError,
		Message: err.Error(),
		Session: u.snapshot(session),
		Success: &success,
	})
}

func (u *UseCase) persist(ctx context.Context, session *model.AnalysisSession) {
	if err := u.repo.PutSession(ctx, u.snapshot(session)); err != nil {
		logging.From(ctx).Warn("failed to persist session",
			"session", session.ID, "error", err)
	}
}

func (u *UseCase) setStatus(session *model.AnalysisSession, status model.SessionStatus) {
	u.update(session, func(s *model.AnalysisSession) { s.Status = status })
}

func (u *UseCase) update(session *model.AnalysisSession, fn func(*model.AnalysisSession)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	fn(session)
}

func (u *UseCase) snapshot(session *model.AnalysisSession) *model.AnalysisSession {
	u.mu.RLock()
	defer u.mu.RUnlock()
	copied := *session
	return &copied
}
