// Package mastery fronts the learner-mastery source with a TTL cache, request
// coalescing and a circuit breaker so traversals stay fast when the source
// is slow or failing.
package mastery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"conceptgraph/application/ports"
	"conceptgraph/domain/core/valueobjects"
	apperrors "conceptgraph/pkg/errors"
	"conceptgraph/pkg/observability"
)

// Config holds cache and breaker settings
type Config struct {
	// CacheTTL is how long a level is served from cache, in seconds. Zero disables caching.
	CacheTTL int

	// CallTimeout bounds one shared source call. The call outlives the
	// caller that started it so other waiters still get the result.
	CallTimeout time.Duration

	Name        string
	MaxRequests uint32        // requests allowed through while half-open
	Interval    time.Duration // closed-state window after which counts reset
	Timeout     time.Duration // open duration before probing again

	// The breaker trips once MinRequests have been seen and the failure
	// ratio reaches FailureThreshold.
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultConfig returns the settings used in production
func DefaultConfig() Config {
	return Config{
		CacheTTL:         300,
		CallTimeout:      2 * time.Second,
		Name:             "mastery",
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// CachedLookup implements ports.MasteryLookup over another lookup
type CachedLookup struct {
	source      ports.MasteryLookup
	cache       ports.Cache
	ttl         int
	callTimeout time.Duration
	flight      singleflight.Group
	breaker     *gobreaker.CircuitBreaker
	metrics     *observability.Collector
	logger      *zap.Logger
}

var _ ports.MasteryLookup = (*CachedLookup)(nil)

// NewCachedLookup wraps source. cache and metrics may be nil.
func NewCachedLookup(source ports.MasteryLookup, cache ports.Cache, cfg Config, metrics *observability.Collector, logger *zap.Logger) *CachedLookup {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig().CallTimeout
	}
	l := &CachedLookup{
		source:      source,
		cache:       cache,
		ttl:         cfg.CacheTTL,
		callTimeout: cfg.CallTimeout,
		metrics:     metrics,
		logger:      logger,
	}

	l.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if metrics != nil {
				metrics.BreakerStates.WithLabelValues(name).Set(float64(to))
			}
		},
		// A caller giving up says nothing about the source's health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	if metrics != nil {
		metrics.BreakerStates.WithLabelValues(cfg.Name).Set(float64(gobreaker.StateClosed))
	}
	return l
}

// cacheKey length-prefixes the user ID so IDs containing the separator
// cannot collide.
func cacheKey(userID string, nodeID valueobjects.ConceptID) string {
	return fmt.Sprintf("mastery:%d:%s:%s", len(userID), userID, nodeID)
}

// MasteryLevel serves from cache, then coalesces concurrent misses for the
// same key into one call through the breaker. Each caller waits on its own
// ctx; a caller giving up does not cancel the shared call.
func (l *CachedLookup) MasteryLevel(ctx context.Context, userID string, nodeID valueobjects.ConceptID) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	key := cacheKey(userID, nodeID)

	if l.cache != nil {
		if v, ok := l.cache.Get(ctx, key); ok {
			if level, ok := v.(float64); ok {
				l.countHit()
				return level, nil
			}
		}
		l.countMiss()
	}

	ch := l.flight.DoChan(key, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.callTimeout)
		defer cancel()

		result, err := l.breaker.Execute(func() (interface{}, error) {
			return l.source.MasteryLevel(callCtx, userID, nodeID)
		})
		if err != nil {
			return nil, err
		}

		level := result.(float64)
		if l.cache != nil && l.ttl > 0 {
			if err := l.cache.Set(callCtx, key, level, l.ttl); err != nil {
				l.logger.Debug("Failed to cache mastery", zap.String("key", key), zap.Error(err))
			}
		}
		return level, nil
	})

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, gobreaker.ErrOpenState) || errors.Is(res.Err, gobreaker.ErrTooManyRequests) {
				return 0, apperrors.NewUnavailableError("mastery").WithCause(res.Err)
			}
			return 0, res.Err
		}
		return res.Val.(float64), nil
	}
}

// Invalidate drops the cached level, e.g. after the learner finishes a lesson
func (l *CachedLookup) Invalidate(ctx context.Context, userID string, nodeID valueobjects.ConceptID) error {
	if l.cache == nil {
		return nil
	}
	return l.cache.Delete(ctx, cacheKey(userID, nodeID))
}

// State reports the breaker state
func (l *CachedLookup) State() gobreaker.State {
	return l.breaker.State()
}

func (l *CachedLookup) countHit() {
	if l.metrics != nil {
		l.metrics.CacheHits.Inc()
	}
}

func (l *CachedLookup) countMiss() {
	if l.metrics != nil {
		l.metrics.CacheMisses.Inc()
	}
}
