package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcdev12/gavel/internal/auction/events"
)

// Recorder adapts a Store to the event-recording interface the auction core
// emits through. The whole event envelope is stored as the payload, so the
// publisher needs no knowledge of event shapes.
type Recorder struct {
	store Store
}

// NewRecorder creates a Recorder over the given store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Record stores the event for asynchronous publication.
func (r *Recorder) Record(ctx context.Context, ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("outbox: marshal event %s: %w", ev.ID, err)
	}
	rec := Record{
		EventID:   ev.ID,
		RoundID:   ev.RoundID,
		SessionID: ev.SessionID,
		EventType: string(ev.Type),
		Payload:   payload,
	}
	if err := r.store.Insert(ctx, rec); err != nil {
		return fmt.Errorf("outbox: record event %s: %w", ev.ID, err)
	}
	return nil
}
