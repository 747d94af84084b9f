package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/foodlens/foodlens/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// memoryRepo keeps sessions in process memory. It backs tests and
// single-shot CLI runs where persistence across restarts is not needed.
type memoryRepo struct {
	mu       sync.RWMutex
	sessions map[model.SessionID]*model.AnalysisSession
}

// NewMemory creates an in-memory session repository.
func NewMemory() Repository {
	return &memoryRepo{
		sessions: make(map[model.SessionID]*model.AnalysisSession),
	}
}

func (r *memoryRepo) PutSession(ctx context.Context, session *model.AnalysisSession) error {
	if session.ID == "" {
		return goerr.New("session ID is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *memoryRepo) GetSession(ctx context.Context, id model.SessionID) (*model.AnalysisSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrSessionNotFound, "session not found", goerr.V("id", id))
	}

	copied := *session
	return &copied, nil
}

func (r *memoryRepo) ListSessions(ctx context.Context, offset, limit int) ([]*model.AnalysisSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*model.AnalysisSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		copied := *s
		all = append(all, &copied)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}
