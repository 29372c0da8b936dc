package hub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RawEvent is one resource update decoded from a stream frame. It is
// immutable after creation; Timestamp is ingestion time, not hub time.
type RawEvent struct {
	EventID    uuid.UUID      `json:"event_id"`
	ResourceID string         `json:"rid"`
	Type       string         `json:"rtype"`
	Timestamp  time.Time      `json:"ts"`
	Payload    map[string]any `json:"raw"`
}

// frameEnvelope matches one element of the SSE data payload: the hub
// emits an array of envelopes, each wrapping zero or more resource
// updates.
type frameEnvelope struct {
	Type string           `json:"type"`
	Data []map[string]any `json:"data"`
}

// DecodeFrame parses a single stream frame body into RawEvents. Items
// without a resource id are dropped; the item's own type wins over the
// envelope type when both are present.
func DecodeFrame(payload []byte, now time.Time) ([]RawEvent, error) {
	var envelopes []frameEnvelope
	if err := json.Unmarshal(payload, &envelopes); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	var events []RawEvent
	for _, env := range envelopes {
		for _, item := range env.Data {
			rid, _ := item["id"].(string)
			if rid == "" {
				continue
			}
			rtype, _ := item["type"].(string)
			if rtype == "" {
				rtype = env.Type
			}
			events = append(events, RawEvent{
				EventID:    uuid.New(),
				ResourceID: rid,
				Type:       rtype,
				Timestamp:  now,
				Payload:    item,
			})
		}
	}
	return events, nil
}
