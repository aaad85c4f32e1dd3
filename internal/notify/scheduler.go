package notify

import (
	"context"

	"github.com/jensenyang2004/Safii-sub000/internal/timeline"
)

// Payload is what an armed notification carries. It is enough for a
// delivery handler to update state without any in-memory session, so a
// notification fired while the app was not resident still works.
type Payload struct {
	Type            timeline.EventType `json:"type"`
	Strike          int                `json:"strike"`
	EventTime       int64              `json:"event_time"`
	Deadline        int64              `json:"deadline,omitempty"`
	StrikeThreshold int                `json:"strike_threshold"`
}

func PayloadFor(e timeline.Event) Payload {
	p := Payload{
		Type:            e.Type,
		Strike:          e.Strike,
		EventTime:       e.Time.UnixMilli(),
		StrikeThreshold: e.StrikeThreshold,
	}
	if e.Deadline != nil {
		p.Deadline = e.Deadline.UnixMilli()
	}
	return p
}

// Handle identifies one armed notification for later cancellation.
type Handle string

// Scheduler arms one absolute-time notification per future timeline event.
// Events already in the past are skipped. CancelAll of the previous epoch
// must complete before a new epoch is armed.
type Scheduler interface {
	ScheduleAll(ctx context.Context, userID string, events []timeline.Event) ([]Handle, error)
	CancelAll(ctx context.Context, userID string, handles []Handle) error
}
