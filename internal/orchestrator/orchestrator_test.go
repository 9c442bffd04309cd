package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatguard/internal/classifier"
	"chatguard/internal/logger"
	"chatguard/pkg/models"
)

type fakeClient struct {
	desc  classifier.Descriptor
	delay time.Duration
	// positive reports which texts get a positive verdict
	positive map[string]bool
	block    bool

	mu    sync.Mutex
	texts []string
}

func newFake(name string, kind classifier.Kind, scope classifier.Scope, positive ...string) *fakeClient {
	p := make(map[string]bool, len(positive))
	for _, s := range positive {
		p[s] = true
	}
	return &fakeClient{
		desc:     classifier.Descriptor{Name: name, Kind: kind, Scope: scope, Timeout: 200 * time.Millisecond, Threshold: 0.5},
		positive: p,
	}
}

func (f *fakeClient) Descriptor() classifier.Descriptor { return f.desc }

func (f *fakeClient) Classify(ctx context.Context, text string) (models.ClassifierVerdict, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()

	if f.block {
		// ignores ctx on purpose
		time.Sleep(5 * time.Second)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return classifier.DefaultVerdict(f.desc.Name, models.VerdictUnavailable), nil
		}
	}

	conf := 0.1
	if f.positive[text] {
		conf = 0.9
	}
	return models.ClassifierVerdict{
		Classifier: f.desc.Name,
		Positive:   conf > 0.5,
		Confidence: conf,
		Status:     models.VerdictOK,
	}, nil
}

func (f *fakeClient) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

const (
	review1 = "Это отличный сервис!"
	review2 = "Цены ужасные, обман."
	message = review1 + " " + review2
)

func TestRun_FansOutByScope(t *testing.T) {
	tox := newFake("toxicity", classifier.KindToxicity, classifier.ScopeSegment, review2)
	spam := newFake("spam", classifier.KindSpam, classifier.ScopeMessage)
	o := New([]classifier.Client{tox, spam}, logger.NopLogger())

	v := o.Run(context.Background(), message, []string{review1, review2})

	require.Len(t, v.Segments, 2)
	assert.False(t, v.Segments[0]["toxicity"].Positive)
	assert.True(t, v.Segments[1]["toxicity"].Positive)
	assert.InDelta(t, 0.9, v.Segments[1]["toxicity"].Confidence, 1e-9)
	assert.False(t, v.Message["spam"].Positive)
	assert.NotContains(t, v.Message, "toxicity")

	assert.ElementsMatch(t, []string{review1, review2}, tox.calls())
	assert.Equal(t, []string{message}, spam.calls())
}

func TestRun_TimeoutDegradesOnlyThatCall(t *testing.T) {
	slow := newFake("spam", classifier.KindSpam, classifier.ScopeMessage, message)
	slow.block = true
	slow.desc.Timeout = 50 * time.Millisecond
	tox := newFake("toxicity", classifier.KindToxicity, classifier.ScopeSegment, review2)
	tox.delay = 20 * time.Millisecond

	o := New([]classifier.Client{slow, tox}, logger.NopLogger())

	start := time.Now()
	v := o.Run(context.Background(), message, []string{review1, review2})
	elapsed := time.Since(start)

	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, classifier.DefaultVerdict("spam", models.VerdictUnavailable), v.Message["spam"])
	assert.Equal(t, models.VerdictOK, v.Segments[1]["toxicity"].Status)
	assert.True(t, v.Segments[1]["toxicity"].Positive)
}

func TestRun_SentimentGatedByMessageReview(t *testing.T) {
	tests := []struct {
		name          string
		reviewPositve bool
		wantSentiment bool
	}{
		{name: "review runs sentiment", reviewPositve: true, wantSentiment: true},
		{name: "non review skips sentiment", reviewPositve: false, wantSentiment: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var positives []string
			if tt.reviewPositve {
				positives = []string{message}
			}
			review := newFake("review", classifier.KindReview, classifier.ScopeMessage, positives...)
			sentiment := newFake("sentiment", classifier.KindSentiment, classifier.ScopeMessage)
			o := New([]classifier.Client{sentiment, review}, logger.NopLogger())

			v := o.Run(context.Background(), message, []string{review1, review2})

			_, ran := v.Message["sentiment"]
			assert.Equal(t, tt.wantSentiment, ran)
			assert.Equal(t, tt.wantSentiment, len(sentiment.calls()) == 1)
		})
	}
}

func TestRun_SegmentSentimentFollowsSegmentReview(t *testing.T) {
	review := newFake("review", classifier.KindReview, classifier.ScopeSegment, review2)
	sentiment := newFake("sentiment", classifier.KindSentiment, classifier.ScopeSegment)
	o := New([]classifier.Client{review, sentiment}, logger.NopLogger())

	v := o.Run(context.Background(), message, []string{review1, review2})

	assert.NotContains(t, v.Segments[0], "sentiment")
	assert.Contains(t, v.Segments[1], "sentiment")
	assert.Equal(t, []string{review2}, sentiment.calls())
}

func TestRun_SentimentStartsAfterReviewCompletes(t *testing.T) {
	review := newFake("review", classifier.KindReview, classifier.ScopeMessage, message)
	review.delay = 60 * time.Millisecond
	sentiment := newFake("sentiment", classifier.KindSentiment, classifier.ScopeMessage)
	o := New([]classifier.Client{review, sentiment}, logger.NopLogger())

	v := o.Run(context.Background(), message, nil)

	require.Contains(t, v.Message, "review")
	require.Contains(t, v.Message, "sentiment")
	assert.Len(t, sentiment.calls(), 1)
}

func TestRun_EmptyTextMakesNoCalls(t *testing.T) {
	tox := newFake("toxicity", classifier.KindToxicity, classifier.ScopeSegment)
	spam := newFake("spam", classifier.KindSpam, classifier.ScopeMessage)
	o := New([]classifier.Client{tox, spam}, logger.NopLogger())

	v := o.Run(context.Background(), "  \n ", nil)

	assert.Empty(t, v.Segments)
	assert.Empty(t, v.Message)
	assert.Empty(t, tox.calls())
	assert.Empty(t, spam.calls())
}
