package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the closed set of events the auction core emits. The gateway
// and outbox switch over it exhaustively; an unknown type is an error, never
// silently dropped.
type EventType string

const (
	EventTypeRoundOpened     EventType = "RoundOpened"
	EventTypeBidAccepted     EventType = "BidAccepted"
	EventTypeBidRejected     EventType = "BidRejected"
	EventTypeTimeReset       EventType = "TimeReset"
	EventTypeFinalCall       EventType = "FinalCall"
	EventTypeRoundPaused     EventType = "RoundPaused"
	EventTypeRoundResumed    EventType = "RoundResumed"
	EventTypeRoundFinalized  EventType = "RoundFinalized"
	EventTypeBreakStarted    EventType = "BreakStarted"
	EventTypeBreakSkipped    EventType = "BreakSkipped"
	EventTypeSessionFinished EventType = "SessionFinished"
)

// Event is the envelope every emitted record shares.
type Event struct {
	ID        string          `json:"id"`
	RoundID   string          `json:"round_id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// ParsePayload decodes an event's data into its typed payload.
func ParsePayload(ev *Event) (interface{}, error) {
	switch ev.Type {
	case EventTypeRoundOpened:
		return decode[RoundOpenedPayload](ev.Data)
	case EventTypeBidAccepted:
		return decode[BidAcceptedPayload](ev.Data)
	case EventTypeBidRejected:
		return decode[BidRejectedPayload](ev.Data)
	case EventTypeTimeReset:
		return decode[TimeResetPayload](ev.Data)
	case EventTypeFinalCall:
		return decode[FinalCallPayload](ev.Data)
	case EventTypeRoundPaused:
		return decode[RoundPausedPayload](ev.Data)
	case EventTypeRoundResumed:
		return decode[RoundResumedPayload](ev.Data)
	case EventTypeRoundFinalized:
		return decode[RoundFinalizedPayload](ev.Data)
	case EventTypeBreakStarted:
		return decode[BreakStartedPayload](ev.Data)
	case EventTypeBreakSkipped:
		return decode[BreakSkippedPayload](ev.Data)
	case EventTypeSessionFinished:
		return decode[SessionFinishedPayload](ev.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", ev.Type)
	}
}

func decode[T any](data json.RawMessage) (T, error) {
	var payload T
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, err
	}
	return payload, nil
}
