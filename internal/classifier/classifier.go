// Package classifier wraps remote text predictors behind one interface and
// normalizes their answers into models.ClassifierVerdict.
//
// Every backend fails open: a predictor that cannot answer yields the
// default verdict for its classifier (negative, zero confidence) with a
// degraded or unavailable status, never an error.
package classifier

import (
	"context"
	"errors"
	"strings"
	"time"

	"chatguard/internal/config"
	"chatguard/internal/constants"
	"chatguard/pkg/models"
)

var ErrEmptyText = errors.New("classifier: text must not be empty")

type Kind string

const (
	KindToxicity  Kind = "toxicity"
	KindSpam      Kind = "spam"
	KindReview    Kind = "review"
	KindSentiment Kind = "sentiment"
)

type Scope string

const (
	ScopeSegment Scope = "segment"
	ScopeMessage Scope = "message"
)

// Descriptor is the resolved, typed form of one configured classifier.
type Descriptor struct {
	Name           string
	Kind           Kind
	Scope          Scope
	Backend        string
	URL            string
	Token          string
	Model          string
	PositiveLabels map[string]struct{}
	Threshold      float64
	Timeout        time.Duration
}

// NewDescriptor resolves a config entry. Label synonyms are matched
// case-insensitively.
func NewDescriptor(c config.ClassifierConfig) Descriptor {
	labels := make(map[string]struct{}, len(c.PositiveLabels))
	for _, l := range c.PositiveLabels {
		labels[strings.ToLower(strings.TrimSpace(l))] = struct{}{}
	}

	d := Descriptor{
		Name:           c.Name,
		Kind:           Kind(c.Kind),
		Scope:          Scope(c.Scope),
		Backend:        c.Backend,
		URL:            c.URL,
		PositiveLabels: labels,
		Threshold:      c.Threshold,
		Timeout:        c.Timeout,
	}
	if d.Threshold <= 0 {
		d.Threshold = constants.DefaultPositiveThresh
	}
	if d.Timeout <= 0 {
		d.Timeout = constants.DefaultClassifierTimeout
	}
	return d
}

func (d Descriptor) IsPositiveLabel(label string) bool {
	_, ok := d.PositiveLabels[strings.ToLower(label)]
	return ok
}

type Client interface {
	Descriptor() Descriptor
	Classify(ctx context.Context, text string) (models.ClassifierVerdict, error)
}

// DefaultVerdict is the single fail-open answer used whenever a classifier
// cannot produce a real one.
func DefaultVerdict(name string, status models.VerdictStatus) models.ClassifierVerdict {
	return models.ClassifierVerdict{
		Classifier: name,
		Positive:   false,
		Confidence: 0,
		Status:     status,
	}
}

type labelScore struct {
	Label string
	Score float64
}

// verdictFromScores picks the highest score among positive-label entries and
// compares it with the threshold. Label is the overall top label.
func (d Descriptor) verdictFromScores(scores []labelScore) models.ClassifierVerdict {
	var positive float64
	var top labelScore
	for i, s := range scores {
		if i == 0 || s.Score > top.Score {
			top = s
		}
		if d.IsPositiveLabel(s.Label) && s.Score > positive {
			positive = s.Score
		}
	}

	return models.ClassifierVerdict{
		Classifier: d.Name,
		Positive:   positive > d.Threshold,
		Label:      top.Label,
		Confidence: positive,
		Status:     models.VerdictOK,
	}
}
