// README: Ride chat: persists messages and relays them to the other party.
package chat

import (
	"context"
	"log/slog"
	"time"

	"kijiwe/internal/apperrors"
	"kijiwe/internal/modules/notify"
	"kijiwe/internal/modules/ride"
	"kijiwe/internal/modules/user"
	"kijiwe/internal/types"
)

// Message is one chat message inside a ride's conversation.
type Message struct {
	ID            types.ID  `json:"id"`
	RideRequestID types.ID  `json:"rideRequestId"`
	SenderID      types.ID  `json:"senderId"`
	SenderRole    user.Role `json:"senderRole"`
	Text          string    `json:"text"`
	SentAt        time.Time `json:"sentAt"`
}

// MessageStore persists chat messages under their ride.
type MessageStore interface {
	AppendMessage(ctx context.Context, m *Message) (types.ID, error)
}

// RideSource resolves the ride a conversation belongs to.
type RideSource interface {
	GetRide(ctx context.Context, id types.ID) (*ride.RideRequest, error)
}

// Notifier delivers a push to one user, best effort.
type Notifier interface {
	Send(ctx context.Context, userID types.ID, n notify.Notification)
}

type Service struct {
	messages MessageStore
	rides    RideSource
	notify   Notifier
	log      *slog.Logger
	now      func() time.Time
}

func NewService(messages MessageStore, rides RideSource, notifier Notifier, log *slog.Logger) *Service {
	return &Service{
		messages: messages,
		rides:    rides,
		notify:   notifier,
		log:      log,
		now:      time.Now,
	}
}

// SendRequest is a chat message from one party of an active ride.
type SendRequest struct {
	Text string `json:"text"`
}

// Send stores the message and notifies the counterpart: a customer's
// message goes to the assigned driver and vice versa. A sender who is
// neither party of the ride is rejected.
func (s *Service) Send(ctx context.Context, senderID types.ID, rideID types.ID, req SendRequest) (*Message, error) {
	if req.Text == "" {
		return nil, apperrors.New(apperrors.InvalidArgument, "message text is required")
	}

	r, err := s.rides.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}

	var recipientID types.ID
	var senderRole user.Role
	var senderName string
	switch senderID {
	case r.CustomerID:
		recipientID = r.DriverID
		senderRole = user.RoleCustomer
		senderName = fallback(r.CustomerName, "Customer")
	case r.DriverID:
		recipientID = r.CustomerID
		senderRole = user.RoleDriver
		senderName = fallback(r.DriverName, "Driver")
	default:
		return nil, apperrors.New(apperrors.PermissionDenied, "sender is not a party of this ride")
	}
	if recipientID == "" {
		return nil, apperrors.New(apperrors.FailedPrecondition, "ride has no counterpart to message yet")
	}

	m := &Message{
		RideRequestID: rideID,
		SenderID:      senderID,
		SenderRole:    senderRole,
		Text:          req.Text,
		SentAt:        s.now(),
	}
	id, err := s.messages.AppendMessage(ctx, m)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "storing chat message", err)
	}
	m.ID = id

	s.notify.Send(ctx, recipientID, notify.ChatMessage{
		RideRequestID: rideID,
		SenderID:      senderID,
		SenderName:    senderName,
		Text:          req.Text,
	})
	return m, nil
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
