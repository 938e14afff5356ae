// README: Transactional driver claim; the assignment is a compare-and-set on both documents.
package dispatch

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"kijiwe/internal/modules/ride"
	"kijiwe/internal/modules/user"
	"kijiwe/internal/types"
)

// FirestoreClaimer implements Claimer with a Firestore transaction. Both the
// ride and the driver are re-read inside the transaction; if either moved
// since the dispatcher's scan, the claim reports false and the scan moves
// on to the next candidate.
type FirestoreClaimer struct {
	fs *firestore.Client
}

func NewFirestoreClaimer(fs *firestore.Client) *FirestoreClaimer {
	return &FirestoreClaimer{fs: fs}
}

func (c *FirestoreClaimer) ClaimDriver(ctx context.Context, rideID, driverID, kijiweID types.ID) (bool, error) {
	rideRef := c.fs.Collection("rideRequests").Doc(string(rideID))
	driverRef := c.fs.Collection("users").Doc(string(driverID))

	claimed := false
	err := c.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		rideSnap, err := tx.Get(rideRef)
		if err != nil {
			return err
		}
		status, _ := rideSnap.DataAt("status")
		assigned, _ := rideSnap.DataAt("driverId")
		if status != string(ride.StatusPendingMatch) || (assigned != nil && assigned != "") {
			return nil
		}

		driverSnap, err := tx.Get(driverRef)
		if err != nil {
			return err
		}
		online, _ := driverSnap.DataAt("driverProfile.isOnline")
		driverStatus, _ := driverSnap.DataAt("driverProfile.status")
		if online != true || driverStatus != string(user.DriverWaitingForRide) {
			return nil
		}

		if err := tx.Update(rideRef, []firestore.Update{
			{Path: "status", Value: string(ride.StatusPendingDriverAcceptance)},
			{Path: "driverId", Value: string(driverID)},
			{Path: "kijiweId", Value: string(kijiweID)},
		}); err != nil {
			return err
		}
		if err := tx.Update(driverRef, []firestore.Update{
			{Path: "driverProfile.status", Value: string(user.DriverPendingAcceptance)},
		}); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("claim transaction for ride %s: %w", rideID, err)
	}
	return claimed, nil
}
