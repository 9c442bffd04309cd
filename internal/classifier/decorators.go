package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"chatguard/internal/constants"
	"chatguard/internal/logger"
	"chatguard/pkg/circuitbreaker"
	"chatguard/pkg/metrics"
	"chatguard/pkg/models"
	"chatguard/pkg/retry"
	"chatguard/pkg/tracing"
)

var errVerdictUnavailable = errors.New("classifier unavailable")

// BreakerClient trips after repeated unavailable verdicts and then answers
// unavailable without calling the backend until the breaker half-opens.
type BreakerClient struct {
	next   Client
	cb     *circuitbreaker.Wrapper
	logger logger.Logger
}

func WrapWithCircuitBreaker(next Client, cfg circuitbreaker.Config, log logger.Logger) *BreakerClient {
	return &BreakerClient{next: next, cb: circuitbreaker.NewWrapper(cfg), logger: log}
}

func (c *BreakerClient) Descriptor() Descriptor {
	return c.next.Descriptor()
}

func (c *BreakerClient) Classify(ctx context.Context, text string) (models.ClassifierVerdict, error) {
	name := c.next.Descriptor().Name

	verdict, err := circuitbreaker.Run(ctx, c.cb, func() (models.ClassifierVerdict, error) {
		v, err := c.next.Classify(ctx, text)
		if err != nil {
			return v, err
		}
		if v.Status == models.VerdictUnavailable {
			return v, errVerdictUnavailable
		}
		return v, nil
	})

	switch {
	case err == nil:
		return verdict, nil
	case errors.Is(err, ErrEmptyText):
		return DefaultVerdict(name, models.VerdictUnavailable), err
	case circuitbreaker.IsBreakerError(err):
		c.logger.WarnwCtx(ctx, "Classifier circuit breaker open", "classifier", name, "state", c.cb.State().String())
		metrics.FallbackUsageTotal.WithLabelValues("classifier", "fail_open", "circuit_open").Inc()
		return DefaultVerdict(name, models.VerdictUnavailable), nil
	default:
		return DefaultVerdict(name, models.VerdictUnavailable), nil
	}
}

// RetryClient repeats calls that ended unavailable. Classifiers are pure
// predictors so repeating a call is safe. Degraded answers are not retried.
type RetryClient struct {
	next   Client
	policy retry.Policy
	logger logger.Logger
}

func WrapWithRetry(next Client, policy retry.Policy, log logger.Logger) *RetryClient {
	return &RetryClient{next: next, policy: policy, logger: log}
}

func (c *RetryClient) Descriptor() Descriptor {
	return c.next.Descriptor()
}

func (c *RetryClient) Classify(ctx context.Context, text string) (models.ClassifierVerdict, error) {
	name := c.next.Descriptor().Name
	last := DefaultVerdict(name, models.VerdictUnavailable)

	err := retry.RetryWithCallback(ctx, c.policy, func() error {
		v, err := c.next.Classify(ctx, text)
		if err != nil {
			last = v
			return retry.NewFatalError(err)
		}
		last = v
		if v.Status == models.VerdictUnavailable {
			return errVerdictUnavailable
		}
		return nil
	}, func(attempt int, err error, nextDelay time.Duration) {
		c.logger.DebugwCtx(ctx, "Retrying classifier call",
			"classifier", name,
			"attempt", attempt,
			"next_delay", nextDelay,
		)
	})

	if errors.Is(err, ErrEmptyText) {
		return last, ErrEmptyText
	}
	return last, nil
}

// CachedClient keeps ok verdicts in Redis keyed by classifier name and the
// SHA-256 of the text. Cache failures fall through to the backend.
type CachedClient struct {
	next   Client
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func WrapWithCache(next Client, client *redis.Client, ttl time.Duration, log logger.Logger) *CachedClient {
	if ttl <= 0 {
		ttl = constants.DefaultVerdictCacheTTL
	}
	return &CachedClient{next: next, client: client, ttl: ttl, logger: log}
}

func (c *CachedClient) Descriptor() Descriptor {
	return c.next.Descriptor()
}

func (c *CachedClient) Classify(ctx context.Context, text string) (models.ClassifierVerdict, error) {
	name := c.next.Descriptor().Name
	key := VerdictCacheKey(name, text)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var cached models.ClassifierVerdict
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			metrics.IncVerdictCacheRequest(name, "hit")
			return cached, nil
		}
	} else if err != redis.Nil {
		c.logger.WarnwCtx(ctx, "Verdict cache read failed", "classifier", name, "error", err)
		metrics.IncVerdictCacheRequest(name, "error")
	} else {
		metrics.IncVerdictCacheRequest(name, "miss")
	}

	verdict, err := c.next.Classify(ctx, text)
	if err != nil || verdict.Status != models.VerdictOK {
		return verdict, err
	}

	if raw, err := json.Marshal(verdict); err == nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.WarnwCtx(ctx, "Verdict cache write failed", "classifier", name, "error", err)
		}
	}
	return verdict, nil
}

func VerdictCacheKey(classifier, text string) string {
	sum := sha256.Sum256([]byte(text))
	return constants.CacheKeyPrefixVerdict + classifier + ":" + hex.EncodeToString(sum[:])
}

// InstrumentedClient is the outermost layer: one span, one duration sample
// and one status counter per call.
type InstrumentedClient struct {
	next Client
}

func WithInstrumentation(next Client) *InstrumentedClient {
	return &InstrumentedClient{next: next}
}

func (c *InstrumentedClient) Descriptor() Descriptor {
	return c.next.Descriptor()
}

func (c *InstrumentedClient) Classify(ctx context.Context, text string) (models.ClassifierVerdict, error) {
	name := c.next.Descriptor().Name

	ctx, span := tracing.StartSpan(ctx, "classifier.classify")
	defer span.End()

	start := time.Now()
	verdict, err := c.next.Classify(ctx, text)
	metrics.ObserveClassifierDuration(name, time.Since(start))

	status := string(verdict.Status)
	if err != nil {
		status = "error"
	}
	metrics.IncClassifierRequest(name, status)
	return verdict, err
}
