package events

import "time"

// Event enumerates high-level topics inside the execution core.
type Event string

const (
	EventOrderSubmitted Event = "order.submitted"
	EventOrderAccepted  Event = "order.accepted"
	EventOrderRejected  Event = "order.rejected"
	EventOrderRetry     Event = "order.retry"
	EventPositionClosed Event = "position.closed"
	EventTrailAdjusted  Event = "trail.adjusted"
	EventTrailStopped   Event = "trail.stopped"
	EventSessionChange  Event = "session.change"
)

// All lists every topic, used by subscribers that want the full stream.
var All = []Event{
	EventOrderSubmitted,
	EventOrderAccepted,
	EventOrderRejected,
	EventOrderRetry,
	EventPositionClosed,
	EventTrailAdjusted,
	EventTrailStopped,
	EventSessionChange,
}

// Envelope is the payload shape published on the bus.
type Envelope struct {
	ID      string    `json:"id"`
	Type    Event     `json:"type"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}
