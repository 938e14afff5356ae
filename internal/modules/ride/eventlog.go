// README: Append-only ride state transition log in Postgres, for audit and dispute handling.
package ride

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"kijiwe/internal/types"
)

// Event records a single state transition on a ride request.
type Event struct {
	RideID     types.ID
	FromStatus Status
	ToStatus   Status
	Action     Action
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// EventSink accepts transition events. Writes are best effort; callers
// ignore the returned error so an audit-log outage never blocks a ride.
type EventSink interface {
	AppendEvent(ctx context.Context, e *Event) error
}

// EventLog is the pgx-backed EventSink.
type EventLog struct {
	db *pgxpool.Pool
}

func NewEventLog(db *pgxpool.Pool) *EventLog {
	return &EventLog{db: db}
}

func (l *EventLog) AppendEvent(ctx context.Context, e *Event) error {
	var actorID *string
	if e.ActorID != nil {
		s := string(*e.ActorID)
		actorID = &s
	}
	_, err := l.db.Exec(ctx, `
        INSERT INTO ride_state_events (
            ride_id, from_status, to_status, action, actor_type, actor_id, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(e.RideID),
		string(e.FromStatus),
		string(e.ToStatus),
		string(e.Action),
		e.ActorType,
		actorID,
		e.CreatedAt,
	)
	return err
}
