// Package aggregator folds raw classifier verdicts into one moderation result.
package aggregator

import (
	"chatguard/internal/classifier"
	"chatguard/internal/constants"
	"chatguard/internal/orchestrator"
	"chatguard/pkg/models"
)

type Aggregator struct {
	policy     string
	kinds      map[string]classifier.Kind
	sentiments []string
}

// New resolves classifier names to kinds once. An unknown policy falls back
// to majority.
func New(policy string, descs []classifier.Descriptor) *Aggregator {
	if policy != constants.SentimentPolicyFirst {
		policy = constants.SentimentPolicyMajority
	}
	a := &Aggregator{policy: policy, kinds: make(map[string]classifier.Kind, len(descs))}
	for _, d := range descs {
		a.kinds[d.Name] = d.Kind
		if d.Kind == classifier.KindSentiment {
			a.sentiments = append(a.sentiments, d.Name)
		}
	}
	return a
}

func (a *Aggregator) Aggregate(segments []string, v orchestrator.Verdicts) models.ModerationResult {
	result := models.ModerationResult{
		Violations:        []models.ViolationKind{},
		ViolatingSegments: []string{},
		SegmentResults:    make([]models.SegmentResult, 0, len(segments)),
		MessageVerdicts:   v.Message,
	}

	toxic := a.positive(v.Message, classifier.KindToxicity)
	spam := a.positive(v.Message, classifier.KindSpam)
	review := a.positive(v.Message, classifier.KindReview)

	for i, text := range segments {
		var verdicts map[string]models.ClassifierVerdict
		if i < len(v.Segments) {
			verdicts = v.Segments[i]
		}
		if verdicts == nil {
			verdicts = map[string]models.ClassifierVerdict{}
		}
		result.SegmentResults = append(result.SegmentResults, models.SegmentResult{Text: text, Verdicts: verdicts})

		if a.positive(verdicts, classifier.KindToxicity) {
			toxic = true
			result.ViolatingSegments = append(result.ViolatingSegments, text)
		}
		if a.positive(verdicts, classifier.KindSpam) {
			spam = true
		}
		if a.positive(verdicts, classifier.KindReview) {
			review = true
		}
	}

	if toxic {
		result.Violations = append(result.Violations, models.ViolationToxicity)
	}
	if spam {
		result.Violations = append(result.Violations, models.ViolationSpam)
	}
	result.IsSafe = len(result.Violations) == 0
	result.IsReview = review

	if review {
		result.Sentiment = a.sentiment(segments, v)
	}
	return result
}

func (a *Aggregator) positive(verdicts map[string]models.ClassifierVerdict, kind classifier.Kind) bool {
	for name, verdict := range verdicts {
		if a.kinds[name] == kind && verdict.Positive {
			return true
		}
	}
	return false
}

// sentiment collects ok signals in unit order: the message first, then each
// segment. Within a unit, classifiers are visited in descriptor order.
func (a *Aggregator) sentiment(segments []string, v orchestrator.Verdicts) *models.Sentiment {
	var signals []bool
	collect := func(verdicts map[string]models.ClassifierVerdict) {
		for _, name := range a.sentiments {
			if verdict, ok := verdicts[name]; ok && verdict.Status == models.VerdictOK {
				signals = append(signals, verdict.Positive)
			}
		}
	}

	collect(v.Message)
	for i := range segments {
		if i < len(v.Segments) {
			collect(v.Segments[i])
		}
	}

	if len(signals) == 0 {
		return nil
	}

	pick := signals[0]
	if a.policy == constants.SentimentPolicyMajority {
		pos := 0
		for _, s := range signals {
			if s {
				pos++
			}
		}
		neg := len(signals) - pos
		switch {
		case pos > neg:
			pick = true
		case neg > pos:
			pick = false
		}
	}

	s := models.SentimentNegative
	if pick {
		s = models.SentimentPositive
	}
	return &s
}
