package models

import (
	"encoding/json"
	"time"
)

const (
	EnvelopeTypeChatMessage     = "chat.message"
	EnvelopeTypeModerationEvent = "moderation.flagged"
	EnvelopeTypeConfigUpdate    = "config.updated"
)

// MessageEnvelope is the wire format for everything that travels over the broker.
type MessageEnvelope struct {
	ID        string          `json:"id"`
	Source    string          `json:"source"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Metadata  Metadata        `json:"metadata"`
}

type Metadata struct {
	TraceID    string                 `json:"trace_id,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Origin describes where a chat message came from.
type Origin struct {
	ChatID     string `json:"chat_id" bson:"chat_id"`
	ChatName   string `json:"chat_name" bson:"chat_name"`
	AuthorName string `json:"author_name" bson:"author_name"`
}

// Message is an inbound text to moderate. ID is empty for direct API calls.
type Message struct {
	ID         string    `json:"id,omitempty"`
	Text       string    `json:"text"`
	Origin     Origin    `json:"origin"`
	ReceivedAt time.Time `json:"received_at"`
}

// DecodeMessage unpacks a chat message carried in an envelope payload.
func (e MessageEnvelope) DecodeMessage() (Message, error) {
	var msg Message
	if err := json.Unmarshal(e.Payload, &msg); err != nil {
		return Message{}, err
	}
	if msg.ID == "" {
		msg.ID = e.ID
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = e.Timestamp
	}
	return msg, nil
}

// ConfigUpdateEvent announces that a rule set changed and must be re-read.
type ConfigUpdateEvent struct {
	Target   string    `json:"target"`
	Action   string    `json:"action"`
	RuleName string    `json:"rule_name,omitempty"`
	At       time.Time `json:"at"`
}
