// Package cache provides a Redis-backed dedup and counter store with
// an in-memory fallback, so the pipeline keeps running when Redis is
// down.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Key prefixes. Format: fvg:pattern:{id}, fvg:counter:{name}.
const (
	patternKeyPrefix = "fvg:pattern:"
	counterKeyPrefix = "fvg:counter:"

	// After this many consecutive failures the service stops trying
	// Redis until the next health probe succeeds.
	failureThreshold = 5
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string        `json:"addr"`
	Password string        `json:"password"`
	DB       int           `json:"db"`
	TTL      time.Duration `json:"ttl"`
}

// DefaultConfig points at a local Redis with a two-day retention.
func DefaultConfig() Config {
	return Config{
		Addr: "localhost:6379",
		TTL:  48 * time.Hour,
	}
}

// Service wraps the Redis client. All operations degrade to the local
// fallback map instead of returning errors; cache loss only weakens
// dedup across restarts.
type Service struct {
	client   *redis.Client
	cfg      Config
	mu       sync.Mutex
	healthy  bool
	failures int
	local    map[string]time.Time
	counters map[string]int64
	logger   zerolog.Logger
}

// NewService connects to Redis. A failed initial ping is logged, not
// fatal; the service starts degraded and recovers via Healthy probes.
func NewService(cfg Config, logger zerolog.Logger) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	s := &Service{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		cfg:      cfg,
		local:    make(map[string]time.Time),
		counters: make(map[string]int64),
		logger:   logger.With().Str("component", "cache").Logger(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Warn().Err(err).Str("addr", cfg.Addr).
			Msg("Redis unavailable, starting with in-memory fallback")
	} else {
		s.healthy = true
		s.logger.Info().Str("addr", cfg.Addr).Msg("Connected to Redis")
	}
	return s
}

// NewMemoryService returns a Service with no Redis client at all.
// Used for dry runs and tests.
func NewMemoryService(logger zerolog.Logger) *Service {
	return &Service{
		cfg:      Config{TTL: DefaultConfig().TTL},
		local:    make(map[string]time.Time),
		counters: make(map[string]int64),
		logger:   logger.With().Str("component", "cache").Logger(),
	}
}

// Healthy probes Redis and updates the degradation state.
func (s *Service) Healthy(ctx context.Context) bool {
	if s.client == nil {
		return false
	}
	err := s.client.Ping(ctx).Err()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.healthy = false
		return false
	}
	if !s.healthy {
		s.logger.Info().Msg("Redis recovered")
	}
	s.healthy = true
	s.failures = 0
	return true
}

// SeenPattern reports whether the pattern ID was marked before.
func (s *Service) SeenPattern(ctx context.Context, id string) bool {
	if s.useRedis() {
		n, err := s.client.Exists(ctx, patternKeyPrefix+id).Result()
		if err == nil {
			return n > 0
		}
		s.recordFailure(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocal()
	_, ok := s.local[patternKeyPrefix+id]
	return ok
}

// MarkPattern records a pattern ID with the configured TTL.
func (s *Service) MarkPattern(ctx context.Context, id string) {
	if s.useRedis() {
		err := s.client.Set(ctx, patternKeyPrefix+id, 1, s.cfg.TTL).Err()
		if err == nil {
			return
		}
		s.recordFailure(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.local[patternKeyPrefix+id] = time.Now().Add(s.cfg.TTL)
}

// IncrCounter increments a named counter and returns the new value.
func (s *Service) IncrCounter(ctx context.Context, name string) int64 {
	if s.useRedis() {
		n, err := s.client.Incr(ctx, counterKeyPrefix+name).Result()
		if err == nil {
			return n
		}
		s.recordFailure(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name]++
	return s.counters[name]
}

// Counter reads a named counter.
func (s *Service) Counter(ctx context.Context, name string) int64 {
	if s.useRedis() {
		n, err := s.client.Get(ctx, counterKeyPrefix+name).Int64()
		if err == nil {
			return n
		}
		if err != redis.Nil {
			s.recordFailure(err)
		} else {
			return 0
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[name]
}

// Close releases the Redis connection.
func (s *Service) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Stats returns cache health for dashboards.
func (s *Service) Stats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]interface{}{
		"healthy":       s.healthy,
		"failures":      s.failures,
		"local_entries": len(s.local),
	}
}

func (s *Service) useRedis() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil && s.healthy
}

func (s *Service) recordFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	if s.failures >= failureThreshold && s.healthy {
		s.healthy = false
		s.logger.Error().Err(err).Int("failures", s.failures).
			Msg("Too many Redis failures, switching to in-memory fallback")
	}
}

// pruneLocal drops expired fallback entries. Caller holds the lock.
func (s *Service) pruneLocal() {
	now := time.Now()
	for k, exp := range s.local {
		if now.After(exp) {
			delete(s.local, k)
		}
	}
}
