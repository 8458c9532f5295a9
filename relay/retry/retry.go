// Package retry wraps upstream calls with status-aware backoff.
//
// Three delay strategies are used, in priority order: an upstream
// Retry-After hint, decorrelated jitter for 429, and full-jitter
// exponential backoff for everything else. Total sleep across one call is
// bounded by a budget.
package retry

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/common/logger"
	"github.com/fuchsia74/grok-api/monitor"
)

// StatusError is implemented by errors that carry an upstream HTTP status.
// Errors without a status are never retried.
type StatusError interface {
	error
	HTTPStatus() int
}

// RetryAfterHint is implemented by errors that expose the upstream
// Retry-After header value.
type RetryAfterHint interface {
	RetryAfter() (time.Duration, bool)
}

// Config bounds the retry behavior of one upstream call.
type Config struct {
	// MaxRetry caps total tries, the first attempt included.
	MaxRetry      int
	RetryCodes    map[int]bool
	BackoffBase   time.Duration
	BackoffFactor float64
	BackoffMax    time.Duration
	// Budget caps the accumulated sleep across all retries.
	Budget time.Duration
}

// DefaultConfig reads the process-wide retry settings.
func DefaultConfig() Config {
	return Config{
		MaxRetry:      config.MaxRetry,
		RetryCodes:    config.ParseRetryStatusCodes(),
		BackoffBase:   secondsToDuration(config.RetryBackoffBase),
		BackoffFactor: config.RetryBackoffFactor,
		BackoffMax:    secondsToDuration(config.RetryBackoffMax),
		Budget:        secondsToDuration(config.RetryBudget),
	}
}

// Without returns a copy of the config with codes removed from the
// retryable set. The chat entrypoint removes 429 so the cross-token
// fallover loop switches tokens instead of hammering the same one.
func (c Config) Without(codes ...int) Config {
	filtered := make(map[int]bool, len(c.RetryCodes))
	for code, retryable := range c.RetryCodes {
		filtered[code] = retryable
	}
	for _, code := range codes {
		delete(filtered, code)
	}
	c.RetryCodes = filtered
	return c
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// sleepFn is swapped out by tests.
var sleepFn = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type state struct {
	cfg        Config
	attempt    int
	totalDelay time.Duration
	// lastDelay seeds the decorrelated jitter; Retry-After hints also
	// feed into it.
	lastDelay time.Duration
}

func newState(cfg Config) *state {
	return &state{cfg: cfg, lastDelay: cfg.BackoffBase}
}

func (s *state) shouldRetry(status int) bool {
	if s.attempt >= s.cfg.MaxRetry {
		return false
	}
	if !s.cfg.RetryCodes[status] {
		return false
	}
	if s.totalDelay >= s.cfg.Budget {
		return false
	}
	return true
}

// delayFor computes the next backoff. attempt must already count the
// failure being handled.
func (s *state) delayFor(status int, retryAfter time.Duration, haveRetryAfter bool) time.Duration {
	if haveRetryAfter && retryAfter > 0 {
		delay := retryAfter
		if delay > s.cfg.BackoffMax {
			delay = s.cfg.BackoffMax
		}
		s.lastDelay = delay
		return delay
	}

	if status == http.StatusTooManyRequests {
		delay := uniformDuration(s.cfg.BackoffBase, 3*s.lastDelay)
		if delay > s.cfg.BackoffMax {
			delay = s.cfg.BackoffMax
		}
		s.lastDelay = delay
		return delay
	}

	ceiling := time.Duration(float64(s.cfg.BackoffBase) * math.Pow(s.cfg.BackoffFactor, float64(s.attempt)))
	if ceiling > s.cfg.BackoffMax {
		ceiling = s.cfg.BackoffMax
	}
	return uniformDuration(0, ceiling)
}

// uniformDuration draws from [lo, hi] regardless of argument order.
func uniformDuration(lo, hi time.Duration) time.Duration {
	if hi < lo {
		lo, hi = hi, lo
	}
	if hi == lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)+1))
}

// Do runs fn until it succeeds or the policy gives up. The last error is
// returned unchanged so callers can still read the upstream status off it.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	s := newState(cfg)

	for {
		err := fn(ctx)
		if err == nil {
			if s.attempt > 0 {
				logger.Logger.Info("upstream call succeeded after retries",
					zap.Int("attempts", s.attempt),
					zap.Duration("total_delay", s.totalDelay))
			}
			return nil
		}

		var statusErr StatusError
		if !stderrors.As(err, &statusErr) {
			return err
		}
		status := statusErr.HTTPStatus()
		s.attempt++

		if !s.shouldRetry(status) {
			return err
		}

		var retryAfter time.Duration
		var haveRetryAfter bool
		var hint RetryAfterHint
		if stderrors.As(err, &hint) {
			retryAfter, haveRetryAfter = hint.RetryAfter()
		}

		delay := s.delayFor(status, retryAfter, haveRetryAfter)
		if s.totalDelay+delay > s.cfg.Budget {
			logger.Logger.Warn("retry budget exhausted",
				zap.Duration("total_delay", s.totalDelay),
				zap.Duration("next_delay", delay),
				zap.Duration("budget", s.cfg.Budget))
			return err
		}
		s.totalDelay += delay
		monitor.RecordUpstreamRetry(status)

		logger.Logger.Warn("retrying upstream call",
			zap.Int("attempt", s.attempt),
			zap.Int("max_retry", s.cfg.MaxRetry),
			zap.Int("status", status),
			zap.Duration("delay", delay),
			zap.Duration("total_delay", s.totalDelay))

		if werr := sleepFn(ctx, delay); werr != nil {
			return errors.Wrap(werr, "retry wait interrupted")
		}
	}
}
