package classifier

import (
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"chatguard/internal/config"
	"chatguard/internal/constants"
	"chatguard/internal/logger"
	"chatguard/pkg/circuitbreaker"
	"chatguard/pkg/retry"
)

// Build creates one client per configured definition, wrapped in order
// backend, retry, circuit breaker, cache, instrumentation. rdb may be nil,
// in which case the verdict cache is skipped.
func Build(cfg *config.Config, rdb *redis.Client, log logger.Logger) ([]Client, error) {
	httpClient := &http.Client{Timeout: constants.DefaultHTTPTimeout}
	clients := make([]Client, 0, len(cfg.Classifiers.Definitions))

	for _, def := range cfg.Classifiers.Definitions {
		desc := NewDescriptor(def)

		var c Client
		switch desc.Backend {
		case constants.BackendHuggingFace:
			desc.Token = cfg.Classifiers.HuggingFace.Token
			c = NewHuggingFaceClient(desc, httpClient, log)
		case constants.BackendOpenAI:
			desc.Token = cfg.Classifiers.OpenAI.Token
			desc.Model = cfg.Classifiers.OpenAI.Model
			c = NewOpenAIModerationClient(desc, cfg.Classifiers.OpenAI.BaseURL, log)
		default:
			return nil, fmt.Errorf("classifier %s: unknown backend %q", desc.Name, desc.Backend)
		}

		if cfg.Classifiers.Retry.Enabled {
			c = WrapWithRetry(c, retryPolicy(cfg.Classifiers.Retry), log)
		}

		if cfg.CircuitBreaker.Enabled {
			c = WrapWithCircuitBreaker(c, circuitbreaker.FromConfig("classifier-"+desc.Name, cfg.CircuitBreaker), log)
		}

		if cfg.Classifiers.Cache.Enabled && rdb != nil {
			c = WrapWithCache(c, rdb, time.Duration(cfg.Classifiers.Cache.TTLSeconds)*time.Second, log)
		}

		clients = append(clients, WithInstrumentation(c))
		log.Infow("Classifier configured",
			"name", desc.Name,
			"kind", desc.Kind,
			"scope", desc.Scope,
			"backend", desc.Backend,
			"threshold", desc.Threshold,
			"timeout", desc.Timeout,
		)
	}

	return clients, nil
}

func retryPolicy(cfg config.ClassifierRetry) retry.Policy {
	policy := retry.ClassifierPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialInterval > 0 {
		policy.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		policy.MaxInterval = cfg.MaxInterval
	}
	return policy
}
