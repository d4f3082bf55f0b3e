package event

import (
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
)

// Event is the envelope clock notifications travel in. Payloads are
// encoded with an EventCodec so subscribers decode only what they need.
type Event struct {
	// ID is a unique identifier for this event instance
	ID string `json:"id"`

	// Seq is assigned by the bus on Publish and increases by one per
	// event. Unlike Timestamp it cannot step backwards.
	Seq uint64 `json:"seq,omitempty"`

	// Type is a namespaced event type (e.g., "clock.jump.post")
	Type string `json:"type"`

	// Source identifies the emitting clock (e.g., "clock:overridable")
	Source string `json:"source"`

	// Timestamp is the wall clock time the envelope was created. Clock
	// readings belong in the payload, since they may be simulated.
	Timestamp time.Time `json:"timestamp"`

	// Data contains the encoded payload
	Data []byte `json:"data,omitempty"`

	// Metadata provides additional context for filtering
	Metadata map[string]string `json:"metadata,omitempty"`
}

// EventCodec defines how payloads are encoded.
type EventCodec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec implements EventCodec with go-json-experiment/json.
type JSONCodec struct{}

// Marshal converts a payload to JSON bytes.
func (c JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes JSON bytes into a payload.
func (c JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewEvent creates an event with a generated ID and the current time.
func NewEvent(eventType, source string, payload any, codec EventCodec) (*Event, error) {
	data, err := codec.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now(),
		Data:      data,
		Metadata:  make(map[string]string),
	}, nil
}

// WithMetadata adds a metadata key-value pair.
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// DecodePayload decodes the event data into v. Empty data leaves v untouched.
func (e *Event) DecodePayload(v any, codec EventCodec) error {
	if len(e.Data) == 0 {
		return nil
	}
	return codec.Unmarshal(e.Data, v)
}
