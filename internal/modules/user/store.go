// README: User store backed by the users collection and Firebase Auth.
package user

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"kijiwe/internal/apperrors"
	"kijiwe/internal/types"
)

const usersCollection = "users"

type Store struct {
	fs   *firestore.Client
	auth *auth.Client
}

func NewStore(fs *firestore.Client, authClient *auth.Client) *Store {
	return &Store{fs: fs, auth: authClient}
}

func (s *Store) doc(id types.ID) *firestore.DocumentRef {
	return s.fs.Collection(usersCollection).Doc(string(id))
}

func (s *Store) Get(ctx context.Context, id types.ID) (*User, error) {
	snap, err := s.doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, apperrors.Newf(apperrors.NotFound, "user %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching user %s: %w", id, err)
	}
	var u User
	if err := snap.DataTo(&u); err != nil {
		return nil, fmt.Errorf("decoding user %s: %w", id, err)
	}
	u.ID = id
	return &u, nil
}

// FCMToken returns the user's registered device token, empty when the user
// is missing or unregistered.
func (s *Store) FCMToken(ctx context.Context, id types.ID) (string, error) {
	u, err := s.Get(ctx, id)
	if apperrors.IsKind(err, apperrors.NotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return u.FCMToken, nil
}

// DeleteAccount removes the user's Firestore document and then the Firebase
// Auth record. A missing auth record after the document is gone still counts
// as success: the account data is cleared either way.
func (s *Store) DeleteAccount(ctx context.Context, id types.ID) error {
	if _, err := s.doc(id).Delete(ctx); err != nil {
		return apperrors.Wrap(apperrors.Internal, "deleting user document", err)
	}
	if err := s.auth.DeleteUser(ctx, string(id)); err != nil {
		if auth.IsUserNotFound(err) {
			return nil
		}
		return apperrors.Wrap(apperrors.Internal, "deleting auth user", err)
	}
	return nil
}
