package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatguard/internal/classifier"
	"chatguard/internal/constants"
	"chatguard/internal/orchestrator"
	"chatguard/pkg/models"
)

var descs = []classifier.Descriptor{
	{Name: "toxicity", Kind: classifier.KindToxicity, Scope: classifier.ScopeSegment},
	{Name: "spam", Kind: classifier.KindSpam, Scope: classifier.ScopeMessage},
	{Name: "review", Kind: classifier.KindReview, Scope: classifier.ScopeMessage},
	{Name: "sentiment", Kind: classifier.KindSentiment, Scope: classifier.ScopeMessage},
	{Name: "seg-sentiment", Kind: classifier.KindSentiment, Scope: classifier.ScopeSegment},
}

func ok(name string, positive bool) models.ClassifierVerdict {
	conf := 0.1
	if positive {
		conf = 0.9
	}
	return models.ClassifierVerdict{Classifier: name, Positive: positive, Confidence: conf, Status: models.VerdictOK}
}

func unavailable(name string) models.ClassifierVerdict {
	return classifier.DefaultVerdict(name, models.VerdictUnavailable)
}

type verdictMap = map[string]models.ClassifierVerdict

func TestAggregate_ToxicSegmentAndSpam(t *testing.T) {
	segments := []string{"Привет всем!", "Ты идиот.", "Купи сейчас"}
	v := orchestrator.Verdicts{
		Segments: []verdictMap{
			{"toxicity": ok("toxicity", false)},
			{"toxicity": ok("toxicity", true)},
			{"toxicity": ok("toxicity", false)},
		},
		Message: verdictMap{"spam": ok("spam", true), "review": ok("review", false)},
	}

	r := New(constants.SentimentPolicyMajority, descs).Aggregate(segments, v)

	assert.False(t, r.IsSafe)
	assert.Equal(t, []models.ViolationKind{models.ViolationToxicity, models.ViolationSpam}, r.Violations)
	assert.Equal(t, []string{"Ты идиот."}, r.ViolatingSegments)
	require.Len(t, r.SegmentResults, 3)
	assert.Equal(t, "Купи сейчас", r.SegmentResults[2].Text)
	assert.False(t, r.IsReview)
	assert.Nil(t, r.Sentiment)
}

func TestAggregate_ViolationOrderIsFixed(t *testing.T) {
	v := orchestrator.Verdicts{
		Segments: []verdictMap{{"toxicity": ok("toxicity", true)}},
		Message:  verdictMap{"spam": ok("spam", true)},
	}
	r := New("", descs).Aggregate([]string{"x"}, v)
	assert.Equal(t, []models.ViolationKind{models.ViolationToxicity, models.ViolationSpam}, r.Violations)

	v.Segments[0]["toxicity"] = ok("toxicity", false)
	r = New("", descs).Aggregate([]string{"x"}, v)
	assert.Equal(t, []models.ViolationKind{models.ViolationSpam}, r.Violations)
}

func TestAggregate_AllUnavailableFailsOpen(t *testing.T) {
	segments := []string{"a b c.", "d e f"}
	v := orchestrator.Verdicts{
		Segments: []verdictMap{
			{"toxicity": unavailable("toxicity")},
			{"toxicity": unavailable("toxicity")},
		},
		Message: verdictMap{
			"spam":      unavailable("spam"),
			"review":    unavailable("review"),
			"sentiment": unavailable("sentiment"),
		},
	}

	r := New(constants.SentimentPolicyMajority, descs).Aggregate(segments, v)

	assert.True(t, r.IsSafe)
	assert.Empty(t, r.Violations)
	assert.NotNil(t, r.Violations)
	assert.Empty(t, r.ViolatingSegments)
	assert.False(t, r.IsReview)
	assert.Nil(t, r.Sentiment)
}

func TestAggregate_EmptyMessage(t *testing.T) {
	r := New("", descs).Aggregate(nil, orchestrator.Verdicts{Message: verdictMap{}})

	assert.True(t, r.IsSafe)
	assert.Empty(t, r.Violations)
	assert.Empty(t, r.SegmentResults)
	assert.Nil(t, r.Sentiment)
}

func TestAggregate_Sentiment(t *testing.T) {
	positive := models.SentimentPositive
	negative := models.SentimentNegative

	tests := []struct {
		name     string
		policy   string
		message  verdictMap
		segments []verdictMap
		want     *models.Sentiment
	}{
		{
			name:    "message review with positive sentiment",
			policy:  constants.SentimentPolicyMajority,
			message: verdictMap{"review": ok("review", true), "sentiment": ok("sentiment", true)},
			want:    &positive,
		},
		{
			name:    "sentiment ignored without review",
			policy:  constants.SentimentPolicyMajority,
			message: verdictMap{"review": ok("review", false), "sentiment": ok("sentiment", true)},
			want:    nil,
		},
		{
			name:    "review with unavailable sentiment",
			policy:  constants.SentimentPolicyMajority,
			message: verdictMap{"review": ok("review", true), "sentiment": unavailable("sentiment")},
			want:    nil,
		},
		{
			name:    "majority over segments",
			policy:  constants.SentimentPolicyMajority,
			message: verdictMap{"review": ok("review", true), "sentiment": ok("sentiment", true)},
			segments: []verdictMap{
				{"seg-sentiment": ok("seg-sentiment", false)},
				{"seg-sentiment": ok("seg-sentiment", false)},
			},
			want: &negative,
		},
		{
			name:    "tie goes to first signal",
			policy:  constants.SentimentPolicyMajority,
			message: verdictMap{"review": ok("review", true), "sentiment": ok("sentiment", false)},
			segments: []verdictMap{
				{"seg-sentiment": ok("seg-sentiment", true)},
			},
			want: &negative,
		},
		{
			name:    "first policy",
			policy:  constants.SentimentPolicyFirst,
			message: verdictMap{"review": ok("review", true), "sentiment": ok("sentiment", true)},
			segments: []verdictMap{
				{"seg-sentiment": ok("seg-sentiment", false)},
				{"seg-sentiment": ok("seg-sentiment", false)},
			},
			want: &positive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segments := make([]string, len(tt.segments))
			for i := range segments {
				segments[i] = "segment"
			}
			r := New(tt.policy, descs).Aggregate(segments, orchestrator.Verdicts{Segments: tt.segments, Message: tt.message})

			assert.Equal(t, tt.want, r.Sentiment)
			if r.Sentiment != nil {
				assert.True(t, r.IsReview)
			}
		})
	}
}

func TestAggregate_SegmentReview(t *testing.T) {
	segDescs := []classifier.Descriptor{
		{Name: "review", Kind: classifier.KindReview, Scope: classifier.ScopeSegment},
		{Name: "sentiment", Kind: classifier.KindSentiment, Scope: classifier.ScopeSegment},
	}
	v := orchestrator.Verdicts{
		Segments: []verdictMap{
			{"review": ok("review", false)},
			{"review": ok("review", true), "sentiment": ok("sentiment", false)},
		},
		Message: verdictMap{},
	}

	r := New(constants.SentimentPolicyMajority, segDescs).Aggregate([]string{"Привет.", "Сервис плохой."}, v)

	assert.True(t, r.IsReview)
	require.NotNil(t, r.Sentiment)
	assert.Equal(t, models.SentimentNegative, *r.Sentiment)
	assert.True(t, r.IsSafe)
}
