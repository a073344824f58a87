package detector

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/cypherlabdev/market-signals-service/internal/cache"
	"github.com/cypherlabdev/market-signals-service/internal/config"
	"github.com/cypherlabdev/market-signals-service/internal/store"
)

// testDetectorSetup is a helper struct to hold test dependencies
type testDetectorSetup struct {
	store *store.Store
	cache *cache.RedisCache
	mini  *miniredis.Miniredis
	cfg   config.DetectionConfig
	ctx   context.Context
}

// setupTestDetector creates an in-memory store and a miniredis-backed cache
func setupTestDetector(t *testing.T) *testDetectorSetup {
	mini, err := miniredis.Run()
	require.NoError(t, err)

	st, err := store.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)

	redisCache := cache.NewRedisCache(cache.RedisCacheConfig{
		Addr: mini.Addr(),
	}, zerolog.Nop())

	cfg := config.DetectionConfig{
		MinBooks:               5,
		LineDeviationThreshold: 0.5,
		ProbDeviationThreshold: 0.04,
		CooldownTTL:            10 * time.Minute,
		PropagationWindow:      5 * time.Minute,
		CycleLockTTL:           55 * time.Second,
		VenueTiers: map[string]string{
			"pinnacle":   "sharp",
			"draftkings": "retail",
			"bovada":     "offshore",
		},
	}

	return &testDetectorSetup{
		store: st,
		cache: redisCache,
		mini:  mini,
		cfg:   cfg,
		ctx:   context.Background(),
	}
}

func (s *testDetectorSetup) cleanup() {
	s.cache.Close()
	s.mini.Close()
	s.store.Close()
}

var tipTime = time.Date(2025, 10, 12, 20, 0, 0, 0, time.UTC)
