// README: Best-effort FCM relay; delivery failures are logged, never propagated.
package notify

import (
	"context"
	"log/slog"

	"firebase.google.com/go/v4/messaging"

	"kijiwe/internal/types"
)

// clickAction is the tap-to-open marker the Flutter clients expect on every
// push.
const clickAction = "FLUTTER_NOTIFICATION_CLICK"

// TokenSource resolves a user's registered device token. An empty token with
// a nil error means the user has no registered device.
type TokenSource interface {
	FCMToken(ctx context.Context, userID types.ID) (string, error)
}

// Messenger is the slice of the FCM client the relay uses.
type Messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type Relay struct {
	tokens TokenSource
	sender Messenger
	log    *slog.Logger
}

func NewRelay(tokens TokenSource, sender Messenger, log *slog.Logger) *Relay {
	return &Relay{tokens: tokens, sender: sender, log: log}
}

// Send delivers a push notification to the user's registered device.
// Delivery is best-effort: a missing token is a logged no-op and delivery
// failures are swallowed, so a notification can never fail the state
// transition that triggered it.
func (r *Relay) Send(ctx context.Context, userID types.ID, n Notification) {
	token, err := r.tokens.FCMToken(ctx, userID)
	if err != nil {
		r.log.Error("fcm token lookup failed", "user", userID, "kind", n.Kind(), "err", err)
		return
	}
	if token == "" {
		r.log.Warn("user has no fcm token, skipping notification", "user", userID, "kind", n.Kind())
		return
	}

	data := n.Data()
	data["click_action"] = clickAction
	data["type"] = n.Kind()

	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: n.Title(),
			Body:  n.Body(),
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:       "default",
				ClickAction: clickAction,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		},
	}

	id, err := r.sender.Send(ctx, msg)
	if err != nil {
		r.log.Error("fcm send failed", "user", userID, "kind", n.Kind(), "err", err)
		return
	}
	r.log.Info("fcm sent", "user", userID, "kind", n.Kind(), "message_id", id)
}
