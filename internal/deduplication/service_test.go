package deduplication

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatguard/internal/config"
	"chatguard/internal/constants"
	"chatguard/internal/logger"
	"chatguard/internal/testinfra"
)

func newMemoryService(t *testing.T, ttl time.Duration) *Service {
	t.Helper()
	svc := NewService(NewMemoryRepository(100, ttl), config.DeduplicationConfig{TTLSeconds: 60}, logger.NopLogger())
	t.Cleanup(svc.StopCacheMetricsUpdater)
	return svc
}

func TestAdmit_SecondDeliveryIsDuplicate(t *testing.T) {
	svc := newMemoryService(t, time.Minute)
	ctx := context.Background()

	first, err := svc.Admit(ctx, "-100", "42")
	require.NoError(t, err)
	second, err := svc.Admit(ctx, "-100", "42")
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
}

func TestAdmit_ScopedByChat(t *testing.T) {
	svc := newMemoryService(t, time.Minute)
	ctx := context.Background()

	a, err := svc.Admit(ctx, "-100", "7")
	require.NoError(t, err)
	b, err := svc.Admit(ctx, "-200", "7")
	require.NoError(t, err)

	assert.True(t, a)
	assert.True(t, b)
}

func TestAdmit_EmptyIDAlwaysAdmitted(t *testing.T) {
	repo := NewMemoryRepository(100, time.Minute)
	svc := NewService(repo, config.DeduplicationConfig{}, logger.NopLogger())
	defer svc.StopCacheMetricsUpdater()

	for i := 0; i < 3; i++ {
		ok, err := svc.Admit(context.Background(), "-100", "")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	size, _ := repo.GetCacheSize(context.Background(), "")
	assert.Zero(t, size)
}

func TestAdmit_ConcurrentDeliveriesAdmitOnce(t *testing.T) {
	svc := newMemoryService(t, time.Minute)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := svc.Admit(context.Background(), "-100", "42")
			if err == nil && ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, admitted.Load())
}

func TestMemoryRepository_ExpiresAndEvicts(t *testing.T) {
	ctx := context.Background()

	repo := NewMemoryRepository(10, 50*time.Millisecond)
	ok, _ := repo.SetNX(ctx, "k", 1, 0)
	require.True(t, ok)
	time.Sleep(120 * time.Millisecond)
	ok, _ = repo.SetNX(ctx, "k", 1, 0)
	assert.True(t, ok, "expired key should be admitted again")

	small := NewMemoryRepository(2, time.Minute)
	for _, k := range []string{"a", "b", "c"} {
		ok, _ := small.SetNX(ctx, k, 1, 0)
		require.True(t, ok)
	}
	size, _ := small.GetCacheSize(ctx, "")
	assert.Equal(t, 2, size)
	ok, _ = small.SetNX(ctx, "a", 1, 0)
	assert.True(t, ok, "evicted key should be admitted again")
}

type failingRepository struct{}

func (failingRepository) SetNX(context.Context, string, interface{}, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func (failingRepository) GetCacheSize(context.Context, string) (int, error) {
	return 0, errors.New("connection refused")
}

func TestAdmit_RedisErrorPolicy(t *testing.T) {
	tests := []struct {
		policy  string
		want    bool
		wantErr bool
	}{
		{policy: constants.FallbackAllow, want: true},
		{policy: constants.FallbackReject, want: false},
		{policy: constants.FallbackFail, want: false, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			svc := NewService(failingRepository{}, config.DeduplicationConfig{TTLSeconds: 60, OnRedisError: tt.policy}, logger.NopLogger())
			defer svc.StopCacheMetricsUpdater()

			ok, err := svc.Admit(context.Background(), "-100", "42")
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestCircuitBreakerRepository_OpensOnFailures(t *testing.T) {
	repo := NewCircuitBreakerRepository(failingRepository{}, config.CircuitBreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	})

	for i := 0; i < 2; i++ {
		_, err := repo.SetNX(context.Background(), "k", 1, time.Minute)
		require.Error(t, err)
	}
	assert.True(t, repo.IsOpen())

	_, err := repo.SetNX(context.Background(), "k", 1, time.Minute)
	assert.ErrorContains(t, err, "circuit breaker is open")
}

func TestNewRepository_SelectsBackend(t *testing.T) {
	cfg := &config.Config{Deduplication: config.DeduplicationConfig{Backend: constants.DedupBackendMemory}}
	repo, err := NewRepository(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryRepository{}, repo)

	cfg.Deduplication.Backend = constants.DedupBackendRedis
	_, err = NewRepository(cfg, nil)
	assert.Error(t, err)

	cfg.Deduplication.Backend = "memcached"
	_, err = NewRepository(cfg, nil)
	assert.Error(t, err)
}

func TestRedisRepository_Integration(t *testing.T) {
	rdb := testinfra.Redis(t)
	ctx := context.Background()

	svc := NewService(NewRedisRepository(rdb), config.DeduplicationConfig{TTLSeconds: 60}, logger.NopLogger())
	defer svc.StopCacheMetricsUpdater()

	first, err := svc.Admit(ctx, "-100", "42")
	require.NoError(t, err)
	second, err := svc.Admit(ctx, "-100", "42")
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)

	ttl, err := rdb.TTL(ctx, Key("-100", "42")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	size, err := NewRedisRepository(rdb).GetCacheSize(ctx, constants.CacheKeyPrefixDedup)
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}
