package events

import (
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// DefaultTopic is the topic forwarded events are published on.
const DefaultTopic = "coursesync.events"

const (
	MetadataKind     = "kind"
	MetadataDraftKey = "draft_key"
)

// Envelope is the JSON payload of a forwarded event.
type Envelope struct {
	Kind Kind            `json:"type"`
	Key  string          `json:"key"`
	Data json.RawMessage `json:"data"`
}

// Forwarder mirrors bus events onto a watermill publisher so consumers that
// must not block the pipeline (SSE streams, remote collectors) read from a
// buffered topic instead of subscribing to the Bus directly.
type Forwarder struct {
	publisher message.Publisher
	topic     string
	stop      func()
}

func NewForwarder(publisher message.Publisher, topic string) *Forwarder {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Forwarder{publisher: publisher, topic: topic}
}

// Attach starts forwarding every event published on b.
func (f *Forwarder) Attach(b *Bus) {
	f.stop = b.SubscribeAll(func(e Event) {
		if err := f.Forward(e); err != nil {
			busLogger.Error().Err(err).Str("kind", string(e.Kind())).Msg("Failed to forward event")
		}
	})
}

// Detach stops forwarding.
func (f *Forwarder) Detach() {
	if f.stop != nil {
		f.stop()
		f.stop = nil
	}
}

// Forward publishes a single event.
func (f *Forwarder) Forward(e Event) error {
	msg, err := NewMessage(e)
	if err != nil {
		return err
	}
	return f.publisher.Publish(f.topic, msg)
}

// NewMessage encodes e as a watermill message.
func NewMessage(e Event) (*message.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", e.Kind(), err)
	}
	payload, err := json.Marshal(Envelope{Kind: e.Kind(), Key: e.DraftKey(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetadataKind, string(e.Kind()))
	msg.Metadata.Set(MetadataDraftKey, e.DraftKey())
	return msg, nil
}

// DecodeEnvelope reads the payload produced by NewMessage.
func DecodeEnvelope(msg *message.Message) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// Event decodes the typed event carried by env.
func (env Envelope) Event() (Event, error) {
	switch env.Kind {
	case KindStart:
		return decodeAs[StartEvent](env.Data)
	case KindProgress:
		return decodeAs[ProgressEvent](env.Data)
	case KindProcessing:
		return decodeAs[ProcessingEvent](env.Data)
	case KindSuccess:
		return decodeAs[SuccessEvent](env.Data)
	case KindError:
		return decodeAs[ErrorEvent](env.Data)
	}
	return nil, fmt.Errorf("unknown event kind %q", env.Kind)
}

func decodeAs[T Event](data json.RawMessage) (Event, error) {
	var e T
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", e.Kind(), err)
	}
	return e, nil
}
