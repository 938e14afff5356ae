// README: Persisted user notifications under users/{uid}/notifications.
package notify

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	"kijiwe/internal/apperrors"
	"kijiwe/internal/types"
)

const (
	usersCollection         = "users"
	notificationsCollection = "notifications"
)

// Store appends user alerts to the per-user notifications subcollection so
// the client's notification history screen can list them.
type Store struct {
	fs *firestore.Client
}

func NewStore(fs *firestore.Client) *Store {
	return &Store{fs: fs}
}

type alertDoc struct {
	Title     string    `firestore:"title"`
	Body      string    `firestore:"body"`
	Read      bool      `firestore:"read"`
	CreatedAt time.Time `firestore:"createdAt,serverTimestamp"`
}

// RecordAlert persists the alert and returns the new notification document
// ID, which the relayed push carries so the client can mark it read.
func (s *Store) RecordAlert(ctx context.Context, userID types.ID, title, body string) (types.ID, error) {
	ref := s.fs.Collection(usersCollection).Doc(string(userID)).Collection(notificationsCollection).NewDoc()
	if _, err := ref.Set(ctx, alertDoc{Title: title, Body: body}); err != nil {
		return "", apperrors.Wrap(apperrors.Internal, "recording user notification", err)
	}
	return types.ID(ref.ID), nil
}
