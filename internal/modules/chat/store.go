// README: Chat messages live in a per-ride subcollection, rideChats/{rideId}/messages.
package chat

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"kijiwe/internal/types"
)

type messageDoc struct {
	SenderID   string    `firestore:"senderId"`
	SenderRole string    `firestore:"senderRole"`
	Text       string    `firestore:"text"`
	SentAt     time.Time `firestore:"sentAt"`
}

type FirestoreStore struct {
	fs *firestore.Client
}

func NewFirestoreStore(fs *firestore.Client) *FirestoreStore {
	return &FirestoreStore{fs: fs}
}

func (s *FirestoreStore) AppendMessage(ctx context.Context, m *Message) (types.ID, error) {
	ref := s.fs.Collection("rideChats").
		Doc(string(m.RideRequestID)).
		Collection("messages").
		NewDoc()
	doc := &messageDoc{
		SenderID:   string(m.SenderID),
		SenderRole: string(m.SenderRole),
		Text:       m.Text,
		SentAt:     m.SentAt,
	}
	if _, err := ref.Set(ctx, doc); err != nil {
		return "", fmt.Errorf("storing chat message for ride %s: %w", m.RideRequestID, err)
	}
	return types.ID(ref.ID), nil
}
