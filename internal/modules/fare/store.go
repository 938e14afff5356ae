// README: Fare config store backed by the appConfiguration collection.
package fare

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
)

const (
	configCollection = "appConfiguration"
	configDoc        = "fareSettings"
)

type Store struct {
	fs *firestore.Client
}

func NewStore(fs *firestore.Client) *Store {
	return &Store{fs: fs}
}

func (s *Store) FareConfig(ctx context.Context) (Config, error) {
	snap, err := s.fs.Collection(configCollection).Doc(configDoc).Get(ctx)
	if err != nil {
		return Config{}, fmt.Errorf("fetching fare settings: %w", err)
	}
	var cfg Config
	if err := snap.DataTo(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding fare settings: %w", err)
	}
	return cfg, nil
}
