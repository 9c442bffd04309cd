// Package deduplication admits each chat message at most once per window.
package deduplication

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"chatguard/internal/config"
	"chatguard/internal/constants"
	"chatguard/internal/logger"
	"chatguard/pkg/metrics"
	"chatguard/pkg/tracing"
)

const cacheMetricsInterval = 30 * time.Second

// Service implements the deduplication window.
type Service struct {
	repo             Repository
	cfg              config.DeduplicationConfig
	logger           logger.Logger
	stopCacheMetrics chan struct{}
	cancelMetricsCtx context.CancelFunc
	stopOnce         sync.Once
}

// NewRepository picks the backend named by cfg.Deduplication.Backend. The
// Redis backend is wrapped in a circuit breaker when one is configured.
func NewRepository(cfg *config.Config, rdb *redis.Client) (Repository, error) {
	dcfg := cfg.Deduplication
	ttl := time.Duration(dcfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = constants.DefaultDedupTTLSeconds * time.Second
	}

	switch dcfg.Backend {
	case constants.DedupBackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis deduplication backend requires a redis client")
		}
		return NewCircuitBreakerRepository(NewRedisRepository(rdb), cfg.CircuitBreaker), nil
	case constants.DedupBackendMemory, "":
		maxEntries := dcfg.MaxEntries
		if maxEntries <= 0 {
			maxEntries = constants.DefaultDedupMaxEntries
		}
		return NewMemoryRepository(maxEntries, ttl), nil
	default:
		return nil, fmt.Errorf("unknown deduplication backend %q", dcfg.Backend)
	}
}

func NewService(repo Repository, cfg config.DeduplicationConfig, log logger.Logger) *Service {
	if cfg.TTLSeconds <= 0 {
		cfg.TTLSeconds = constants.DefaultDedupTTLSeconds
	}
	if cfg.OnRedisError == "" {
		cfg.OnRedisError = constants.FallbackAllow
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		repo:             repo,
		cfg:              cfg,
		logger:           log,
		stopCacheMetrics: make(chan struct{}),
		cancelMetricsCtx: cancel,
	}

	go s.updateCacheSizeMetrics(ctx)

	return s
}

// Key is the window key for a message id inside a chat. Message ids are only
// unique per chat.
func Key(scope, messageID string) string {
	return constants.CacheKeyPrefixDedup + scope + ":" + messageID
}

// Admit records the message and reports whether it is seen for the first
// time. An empty messageID is always admitted and never recorded.
func (s *Service) Admit(ctx context.Context, scope, messageID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "deduplication.admit")
	defer span.End()

	if messageID == "" {
		s.recordMetricsWithStatus(0, "skipped")
		return true, nil
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	start := time.Now()
	admitted, err := s.repo.SetNX(ctx, Key(scope, messageID), time.Now().Unix(), time.Duration(s.cfg.TTLSeconds)*time.Second)
	duration := time.Since(start)

	if err != nil {
		return s.handleRedisError(ctx, err, duration, messageID)
	}

	s.recordMetrics(duration, admitted)
	return admitted, nil
}

func (s *Service) handleRedisError(ctx context.Context, err error, duration time.Duration, messageID string) (bool, error) {
	s.recordMetricsWithStatus(duration, "error")

	switch s.cfg.OnRedisError {
	case constants.FallbackAllow:
		metrics.FallbackUsageTotal.WithLabelValues("deduplication", "allow_on_error", "redis_error").Inc()
		s.logger.WarnwCtx(ctx, "Redis error during dedup check, allowing message (fallback: allow)",
			"error", err,
		)
		return true, nil
	case constants.FallbackReject:
		metrics.FallbackUsageTotal.WithLabelValues("deduplication", "reject_on_error", "redis_error").Inc()
		s.logger.WarnwCtx(ctx, "Redis error during dedup check, treating message as duplicate (fallback: reject)",
			"error", err,
		)
		return false, nil
	default:
		return false, fmt.Errorf("redis error during dedup check for message %s: %w", messageID, err)
	}
}

func (s *Service) recordMetrics(duration time.Duration, isUnique bool) {
	status := "duplicate"
	if isUnique {
		status = "unique"
	}
	s.recordMetricsWithStatus(duration, status)
}

func (s *Service) recordMetricsWithStatus(duration time.Duration, status string) {
	metrics.DeduplicateMessagesTotal.WithLabelValues(status).Inc()
	metrics.ObserveDedupDuration(duration, status)
}

func (s *Service) updateCacheSizeMetrics(ctx context.Context) {
	ticker := time.NewTicker(cacheMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			size, err := s.repo.GetCacheSize(ctx, constants.CacheKeyPrefixDedup)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Debugw("Failed to get cache size for metrics",
					"error", err,
				)
				continue
			}
			metrics.SetDedupCacheSize(size)
		case <-s.stopCacheMetrics:
			return
		case <-ctx.Done():
			return
		}
	}
}

// StopCacheMetricsUpdater stops the background cache metrics updater. It is
// safe to call more than once.
func (s *Service) StopCacheMetricsUpdater() {
	s.stopOnce.Do(func() {
		s.cancelMetricsCtx()
		close(s.stopCacheMetrics)
	})
}
