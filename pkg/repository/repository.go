package repository

import (
	"context"

	"github.com/foodlens/foodlens/pkg/model"
)

// Repository defines the interface for analysis session persistence
type Repository interface {
	// PutSession saves a session, overwriting any previous version
	PutSession(ctx context.Context, session *model.AnalysisSession) error

	// GetSession retrieves a session by ID
	GetSession(ctx context.Context, id model.SessionID) (*model.AnalysisSession, error)

	// ListSessions retrieves sessions ordered by creation time, newest first
	ListSessions(ctx context.Context, offset, limit int) ([]*model.AnalysisSession, error)
}
