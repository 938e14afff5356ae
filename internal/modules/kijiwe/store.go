// README: Read-only kijiwe store; queue mutations ride along in the ride write batch.
package kijiwe

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/genproto/googleapis/type/latlng"

	"kijiwe/internal/types"
)

const kijiweCollection = "kijiwe"

// kijiweDoc mirrors the stored document shape, with the position nested the
// way the mobile clients write it.
type kijiweDoc struct {
	Name     string `firestore:"name"`
	Position struct {
		GeoPoint *latlng.LatLng `firestore:"geoPoint"`
	} `firestore:"position"`
	Queue   []string `firestore:"queue"`
	AdminID string   `firestore:"adminId"`
}

type Store struct {
	fs *firestore.Client
}

func NewStore(fs *firestore.Client) *Store {
	return &Store{fs: fs}
}

// ListAll returns every kijiwe, including those without a usable position;
// callers filter with HasPosition.
func (s *Store) ListAll(ctx context.Context) ([]Kijiwe, error) {
	iter := s.fs.Collection(kijiweCollection).Documents(ctx)
	defer iter.Stop()

	var out []Kijiwe
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing kijiwes: %w", err)
		}
		var doc kijiweDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decoding kijiwe %s: %w", snap.Ref.ID, err)
		}
		k := Kijiwe{
			ID:      types.ID(snap.Ref.ID),
			Name:    doc.Name,
			AdminID: types.ID(doc.AdminID),
		}
		if doc.Position.GeoPoint != nil {
			k.Position = types.Point{Lat: doc.Position.GeoPoint.Latitude, Lng: doc.Position.GeoPoint.Longitude}
		}
		for _, d := range doc.Queue {
			k.Queue = append(k.Queue, types.ID(d))
		}
		out = append(out, k)
	}
	return out, nil
}
