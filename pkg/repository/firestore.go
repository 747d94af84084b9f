package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/foodlens/foodlens/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const sessionCollection = "analysis_sessions"

// firestoreRepo implements Repository using Firestore
type firestoreRepo struct {
	client *firestore.Client
}

// NewFirestore creates a Firestore-backed session repository. Pass
// firestore.DefaultDatabaseID as databaseName for the default database.
func NewFirestore(ctx context.Context, projectID, databaseName string) (Repository, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseName)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID), goerr.V("database", databaseName))
	}

	return &firestoreRepo{client: client}, nil
}

func (r *firestoreRepo) PutSession(ctx context.Context, session *model.AnalysisSession) error {
	if session.ID == "" {
		return goerr.New("session ID is empty")
	}

	_, err := r.client.Collection(sessionCollection).Doc(string(session.ID)).Set(ctx, session)
	if err != nil {
		return goerr.Wrap(err, "failed to save session", goerr.V("id", session.ID))
	}
	return nil
}

func (r *firestoreRepo) GetSession(ctx context.Context, id model.SessionID) (*model.AnalysisSession, error) {
	doc, err := r.client.Collection(sessionCollection).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrSessionNotFound, "session not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get session", goerr.V("id", id))
	}

	var session model.AnalysisSession
	if err := doc.DataTo(&session); err != nil {
		return nil, goerr.Wrap(err, "failed to decode session", goerr.V("id", id))
	}
	return &session, nil
}

func (r *firestoreRepo) ListSessions(ctx context.Context, offset, limit int) ([]*model.AnalysisSession, error) {
	query := r.client.Collection(sessionCollection).
		OrderBy("created_at", firestore.Desc).
		Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var sessions []*model.AnalysisSession
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate sessions")
		}

		var session model.AnalysisSession
		if err := doc.DataTo(&session); err != nil {
			return nil, goerr.Wrap(err, "failed to decode session", goerr.V("doc", doc.Ref.ID))
		}
		sessions = append(sessions, &session)
	}

	return sessions, nil
}
