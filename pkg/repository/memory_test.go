package repository_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/foodlens/foodlens/pkg/model"
	"github.com/foodlens/foodlens/pkg/repository"
	"github.com/m-mizutani/gt"
)

func newSession(createdAt time.Time) *model.AnalysisSession {
	return &model.AnalysisSession{
		ID:        model.NewSessionID(),
		ImageRef:  "meal.jpg",
		Status:    model.SessionCompleted,
		CreatedAt: createdAt,
	}
}

func TestMemoryPutAndGet(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	session := newSession(time.Now())
	session.SuccessRate = 0.75
	gt.NoError(t, repo.PutSession(ctx, session))

	got, err := repo.GetSession(ctx, session.ID)
	gt.NoError(t, err)
	gt.Equal(t, got.ID, session.ID)
	gt.Equal(t, got.SuccessRate, 0.75)

	// The stored copy must not alias the caller's struct
	session.SuccessRate = 0.1
	got, err = repo.GetSession(ctx, session.ID)
	gt.NoError(t, err)
	gt.Equal(t, got.SuccessRate, 0.75)
}

func TestMemoryGetNotFound(t *testing.T) {
	repo := repository.NewMemory()

	_, err := repo.GetSession(context.Background(), model.SessionID("nope"))
	gt.True(t, errors.Is(err, model.ErrSessionNotFound))
}

func TestMemoryPutRejectsEmptyID(t *testing.T) {
	repo := repository.NewMemory()

	err := repo.PutSession(context.Background(), &model.AnalysisSession{})
	gt.Error(t, err)
}

func TestMemoryPutOverwrites(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	session := newSession(time.Now())
	session.Status = model.SessionRunning
	gt.NoError(t, repo.PutSession(ctx, session))

	session.Status = model.SessionCompleted
	gt.NoError(t, repo.PutSession(ctx, session))

	got, err := repo.GetSession(ctx, session.ID)
	gt.NoError(t, err)
	gt.Equal(t, got.Status, model.SessionCompleted)
}

func TestMemoryListNewestFirst(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	base := time.Now()
	var ids []model.SessionID
	for i := 0; i < 5; i++ {
		s := newSession(base.Add(time.Duration(i) * time.Minute))
		s.ImageRef = fmt.Sprintf("meal-%d.jpg", i)
		gt.NoError(t, repo.PutSession(ctx, s))
		ids = append(ids, s.ID)
	}

	sessions, err := repo.ListSessions(ctx, 0, 0)
	gt.NoError(t, err)
	gt.Equal(t, len(sessions), 5)
	gt.Equal(t, sessions[0].ID, ids[4])
	gt.Equal(t, sessions[4].ID, ids[0])
}

func TestMemoryListPaging(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 5; i++ {
		gt.NoError(t, repo.PutSession(ctx, newSession(base.Add(time.Duration(i)*time.Minute))))
	}

	page, err := repo.ListSessions(ctx, 1, 2)
	gt.NoError(t, err)
	gt.Equal(t, len(page), 2)

	tail, err := repo.ListSessions(ctx, 4, 10)
	gt.NoError(t, err)
	gt.Equal(t, len(tail), 1)

	empty, err := repo.ListSessions(ctx, 10, 2)
	gt.NoError(t, err)
	gt.Equal(t, len(empty), 0)
}
