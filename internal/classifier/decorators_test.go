package classifier

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatguard/internal/logger"
	"chatguard/internal/testinfra"
	"chatguard/pkg/circuitbreaker"
	"chatguard/pkg/models"
	"chatguard/pkg/retry"
)

type scriptedClient struct {
	desc     Descriptor
	verdicts []models.ClassifierVerdict
	calls    atomic.Int32
}

func (s *scriptedClient) Descriptor() Descriptor { return s.desc }

func (s *scriptedClient) Classify(_ context.Context, text string) (models.ClassifierVerdict, error) {
	if text == "" {
		return DefaultVerdict(s.desc.Name, models.VerdictUnavailable), ErrEmptyText
	}
	n := int(s.calls.Add(1)) - 1
	if n >= len(s.verdicts) {
		n = len(s.verdicts) - 1
	}
	return s.verdicts[n], nil
}

func okVerdict(name string, positive bool, conf float64) models.ClassifierVerdict {
	return models.ClassifierVerdict{Classifier: name, Positive: positive, Confidence: conf, Status: models.VerdictOK}
}

func TestRetryClient_RetriesUnavailable(t *testing.T) {
	inner := &scriptedClient{
		desc: Descriptor{Name: "spam"},
		verdicts: []models.ClassifierVerdict{
			DefaultVerdict("spam", models.VerdictUnavailable),
			okVerdict("spam", true, 0.8),
		},
	}
	policy := retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 1}

	v, err := WrapWithRetry(inner, policy, logger.NopLogger()).Classify(context.Background(), "buy now")
	require.NoError(t, err)
	assert.Equal(t, okVerdict("spam", true, 0.8), v)
	assert.EqualValues(t, 2, inner.calls.Load())
}

func TestRetryClient_DoesNotRetryDegraded(t *testing.T) {
	inner := &scriptedClient{
		desc:     Descriptor{Name: "spam"},
		verdicts: []models.ClassifierVerdict{DefaultVerdict("spam", models.VerdictDegraded)},
	}
	policy := retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 1}

	v, err := WrapWithRetry(inner, policy, logger.NopLogger()).Classify(context.Background(), "buy now")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictDegraded, v.Status)
	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestRetryClient_EmptyTextIsNotRetried(t *testing.T) {
	inner := &scriptedClient{desc: Descriptor{Name: "spam"}, verdicts: []models.ClassifierVerdict{okVerdict("spam", false, 0)}}
	policy := retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 1}

	_, err := WrapWithRetry(inner, policy, logger.NopLogger()).Classify(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestBreakerClient_OpenBreakerFailsOpen(t *testing.T) {
	inner := &scriptedClient{
		desc:     Descriptor{Name: "toxicity"},
		verdicts: []models.ClassifierVerdict{DefaultVerdict("toxicity", models.VerdictUnavailable)},
	}
	cfg := circuitbreaker.Config{
		Name:        "classifier-test-open",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: circuitbreaker.RatioTrip(2, 0.5),
	}
	c := WrapWithCircuitBreaker(inner, cfg, logger.NopLogger())

	for i := 0; i < 2; i++ {
		v, err := c.Classify(context.Background(), "text")
		require.NoError(t, err)
		assert.Equal(t, models.VerdictUnavailable, v.Status)
	}
	require.True(t, c.cb.IsOpen())

	v, err := c.Classify(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, DefaultVerdict("toxicity", models.VerdictUnavailable), v)
	assert.EqualValues(t, 2, inner.calls.Load())
}

func TestBreakerClient_PassesThroughOK(t *testing.T) {
	inner := &scriptedClient{desc: Descriptor{Name: "review"}, verdicts: []models.ClassifierVerdict{okVerdict("review", true, 0.7)}}
	c := WrapWithCircuitBreaker(inner, circuitbreaker.DefaultConfig("classifier-test-ok"), logger.NopLogger())

	v, err := c.Classify(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, okVerdict("review", true, 0.7), v)
}

func TestVerdictCacheKey_IsStable(t *testing.T) {
	a := VerdictCacheKey("toxicity", "Привет")
	b := VerdictCacheKey("toxicity", "Привет")
	c := VerdictCacheKey("spam", "Привет")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "verdict:toxicity:")
}

func TestCachedClient_CachesOnlyOKVerdicts(t *testing.T) {
	rdb := testinfra.Redis(t)
	ctx := context.Background()

	inner := &scriptedClient{
		desc: Descriptor{Name: "toxicity"},
		verdicts: []models.ClassifierVerdict{
			DefaultVerdict("toxicity", models.VerdictDegraded),
			okVerdict("toxicity", true, 0.9),
		},
	}
	c := WrapWithCache(inner, rdb, time.Minute, logger.NopLogger())

	v, err := c.Classify(ctx, "плохой текст")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictDegraded, v.Status)

	v, err = c.Classify(ctx, "плохой текст")
	require.NoError(t, err)
	assert.Equal(t, okVerdict("toxicity", true, 0.9), v)

	v, err = c.Classify(ctx, "плохой текст")
	require.NoError(t, err)
	assert.Equal(t, okVerdict("toxicity", true, 0.9), v)
	assert.EqualValues(t, 2, inner.calls.Load())
}
