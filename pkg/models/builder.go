package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type MessageEnvelopeBuilder struct {
	envelope *MessageEnvelope
	payload  interface{}
}

func NewMessageEnvelopeBuilder() *MessageEnvelopeBuilder {
	return &MessageEnvelopeBuilder{
		envelope: &MessageEnvelope{
			Metadata: Metadata{},
		},
	}
}

func (b *MessageEnvelopeBuilder) WithID(id string) *MessageEnvelopeBuilder {
	b.envelope.ID = id
	return b
}

func (b *MessageEnvelopeBuilder) WithSource(source string) *MessageEnvelopeBuilder {
	b.envelope.Source = source
	return b
}

func (b *MessageEnvelopeBuilder) WithType(eventType string) *MessageEnvelopeBuilder {
	b.envelope.Type = eventType
	return b
}

func (b *MessageEnvelopeBuilder) WithTimestamp(timestamp time.Time) *MessageEnvelopeBuilder {
	b.envelope.Timestamp = timestamp
	return b
}

func (b *MessageEnvelopeBuilder) WithPayload(payload interface{}) *MessageEnvelopeBuilder {
	b.payload = payload
	return b
}

func (b *MessageEnvelopeBuilder) WithTraceID(traceID string) *MessageEnvelopeBuilder {
	b.envelope.Metadata.TraceID = traceID
	return b
}

func (b *MessageEnvelopeBuilder) WithAttribute(key string, value interface{}) *MessageEnvelopeBuilder {
	if b.envelope.Metadata.Attributes == nil {
		b.envelope.Metadata.Attributes = make(map[string]interface{})
	}
	b.envelope.Metadata.Attributes[key] = value
	return b
}

func (b *MessageEnvelopeBuilder) Build() (*MessageEnvelope, error) {
	if b.envelope.Timestamp.IsZero() {
		b.envelope.Timestamp = time.Now()
	}
	if b.payload != nil {
		raw, err := json.Marshal(b.payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal envelope payload: %w", err)
		}
		b.envelope.Payload = raw
	}
	return b.envelope, nil
}
