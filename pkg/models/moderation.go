package models

import "time"

type VerdictStatus string

const (
	VerdictOK          VerdictStatus = "ok"
	VerdictDegraded    VerdictStatus = "degraded"
	VerdictUnavailable VerdictStatus = "unavailable"
)

// ClassifierVerdict is one classifier's answer for one unit of text.
type ClassifierVerdict struct {
	Classifier string        `json:"classifier" bson:"classifier"`
	Positive   bool          `json:"positive" bson:"positive"`
	Label      string        `json:"label,omitempty" bson:"label,omitempty"`
	Confidence float64       `json:"confidence" bson:"confidence"`
	Status     VerdictStatus `json:"status" bson:"status"`
}

type SegmentResult struct {
	Text     string                       `json:"text" bson:"text"`
	Verdicts map[string]ClassifierVerdict `json:"verdicts" bson:"verdicts"`
}

type ViolationKind string

const (
	ViolationToxicity ViolationKind = "toxicity"
	ViolationSpam     ViolationKind = "spam"
)

// ViolationKinds is the closed set of violations in reporting order.
var ViolationKinds = []ViolationKind{ViolationToxicity, ViolationSpam}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
)

// ModerationResult is the aggregated decision for one message.
// IsSafe is always len(Violations) == 0 and Sentiment is only set for reviews.
type ModerationResult struct {
	IsSafe            bool                         `json:"is_safe" bson:"is_safe"`
	Violations        []ViolationKind              `json:"violations" bson:"violations"`
	ViolatingSegments []string                     `json:"violating_segments" bson:"violating_segments"`
	SegmentResults    []SegmentResult              `json:"segment_results" bson:"segment_results"`
	MessageVerdicts   map[string]ClassifierVerdict `json:"message_verdicts,omitempty" bson:"message_verdicts,omitempty"`
	IsReview          bool                         `json:"is_review" bson:"is_review"`
	Sentiment         *Sentiment                   `json:"sentiment" bson:"sentiment"`
}

func (r ModerationResult) HasViolation(kind ViolationKind) bool {
	for _, v := range r.Violations {
		if v == kind {
			return true
		}
	}
	return false
}

// Registration is the externally owned record of a moderated chat.
type Registration struct {
	ChatID             string `json:"chat_id"`
	Title              string `json:"title"`
	Registered         bool   `json:"registered"`
	NotificationTarget string `json:"notification_target"`
}

type RecordKind string

const (
	RecordKindChat RecordKind = "chat"
	RecordKindText RecordKind = "text"
	RecordKindURL  RecordKind = "url"
)

// CheckRecord is the persisted trace of one moderation run.
type CheckRecord struct {
	ID        string           `json:"id" bson:"_id"`
	Kind      RecordKind       `json:"kind" bson:"kind"`
	ChatID    string           `json:"chat_id,omitempty" bson:"chat_id,omitempty"`
	MessageID string           `json:"message_id,omitempty" bson:"message_id,omitempty"`
	Text      string           `json:"text" bson:"text"`
	Author    string           `json:"author,omitempty" bson:"author,omitempty"`
	SourceURL string           `json:"url,omitempty" bson:"url,omitempty"`
	Email     string           `json:"email,omitempty" bson:"email,omitempty"`
	Result    ModerationResult `json:"result" bson:"result"`
	CreatedAt time.Time        `json:"date" bson:"date"`
}

type DailyCount struct {
	Date  string `json:"date" bson:"_id"`
	Count int64  `json:"count" bson:"count"`
}

// StatsFilter narrows a per-day count query. Zero values mean unbounded.
type StatsFilter struct {
	Kind RecordKind
	From time.Time
	To   time.Time
}

type OutcomeStatus string

const (
	OutcomeOK           OutcomeStatus = "ok"
	OutcomeDuplicate    OutcomeStatus = "duplicate"
	OutcomeExempt       OutcomeStatus = "exempt"
	OutcomeUnregistered OutcomeStatus = "unregistered"
	OutcomeNoTarget     OutcomeStatus = "no-notification-target"
)

// Outcome is what the pipeline reports for one chat message. States lists
// every state the run passed through, in order.
type Outcome struct {
	Status     OutcomeStatus     `json:"status"`
	Result     *ModerationResult `json:"result,omitempty"`
	Persisted  bool              `json:"persisted"`
	Notified   bool              `json:"notified"`
	ExemptRule string            `json:"exempt_rule,omitempty"`
	States     []string          `json:"states"`
}

// ModerationEvent is the payload published for every unsafe result.
type ModerationEvent struct {
	Kind      RecordKind       `json:"kind"`
	Message   Message          `json:"message"`
	SourceURL string           `json:"url,omitempty"`
	Result    ModerationResult `json:"result"`
}
