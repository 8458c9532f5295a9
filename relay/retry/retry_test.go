package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"
)

type fakeUpstreamErr struct {
	status     int
	retryAfter time.Duration
}

func (e *fakeUpstreamErr) Error() string   { return fmt.Sprintf("upstream status %d", e.status) }
func (e *fakeUpstreamErr) HTTPStatus() int { return e.status }
func (e *fakeUpstreamErr) RetryAfter() (time.Duration, bool) {
	return e.retryAfter, e.retryAfter > 0
}

// captureSleeps stubs sleepFn and records requested delays.
func captureSleeps(t *testing.T) *[]time.Duration {
	t.Helper()
	var delays []time.Duration
	orig := sleepFn
	sleepFn = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	t.Cleanup(func() { sleepFn = orig })
	return &delays
}

func testConfig() Config {
	return Config{
		MaxRetry:      3,
		RetryCodes:    map[int]bool{401: true, 429: true, 403: true},
		BackoffBase:   500 * time.Millisecond,
		BackoffFactor: 2.0,
		BackoffMax:    30 * time.Second,
		Budget:        90 * time.Second,
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	delays := captureSleeps(t)

	calls := 0
	err := Do(context.Background(), testConfig(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Empty(t, *delays)
}

func TestDoPlainErrorNotRetried(t *testing.T) {
	delays := captureSleeps(t)

	calls := 0
	boom := errors.New("no status here")
	err := Do(context.Background(), testConfig(), func(context.Context) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
	require.Empty(t, *delays)
}

func TestDoNonRetryableStatus(t *testing.T) {
	delays := captureSleeps(t)

	calls := 0
	err := Do(context.Background(), testConfig(), func(context.Context) error {
		calls++
		return &fakeUpstreamErr{status: 500}
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
	require.Empty(t, *delays)
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	delays := captureSleeps(t)

	calls := 0
	err := Do(context.Background(), testConfig(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &fakeUpstreamErr{status: 401}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Len(t, *delays, 2)
}

func TestDoExhaustsAttempts(t *testing.T) {
	delays := captureSleeps(t)

	calls := 0
	err := Do(context.Background(), testConfig(), func(context.Context) error {
		calls++
		return &fakeUpstreamErr{status: 401}
	})
	require.Error(t, err)
	// MaxRetry counts total tries, so 3 calls and 2 sleeps.
	require.Equal(t, 3, calls)
	require.Len(t, *delays, 2)
}

func TestDoHonorsRetryAfter(t *testing.T) {
	delays := captureSleeps(t)

	calls := 0
	err := Do(context.Background(), testConfig(), func(context.Context) error {
		calls++
		if calls == 1 {
			return &fakeUpstreamErr{status: 429, retryAfter: 2 * time.Second}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []time.Duration{2 * time.Second}, *delays)
}

func TestDoClampsRetryAfter(t *testing.T) {
	delays := captureSleeps(t)

	cfg := testConfig()
	cfg.BackoffMax = 5 * time.Second
	calls := 0
	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls == 1 {
			return &fakeUpstreamErr{status: 429, retryAfter: time.Minute}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []time.Duration{5 * time.Second}, *delays)
}

func TestDoWithout429FailsOver(t *testing.T) {
	delays := captureSleeps(t)

	calls := 0
	err := Do(context.Background(), testConfig().Without(429), func(context.Context) error {
		calls++
		return &fakeUpstreamErr{status: 429}
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
	require.Empty(t, *delays)

	var statusErr StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, 429, statusErr.HTTPStatus())
}

func TestDoBudgetAborts(t *testing.T) {
	delays := captureSleeps(t)

	cfg := testConfig()
	cfg.Budget = time.Second
	calls := 0
	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return &fakeUpstreamErr{status: 429, retryAfter: 2 * time.Second}
	})
	require.Error(t, err)
	// the 2s Retry-After would blow the 1s budget, so no sleep happens
	require.Equal(t, 1, calls)
	require.Empty(t, *delays)
}

func TestConfigWithoutDoesNotMutate(t *testing.T) {
	cfg := testConfig()
	trimmed := cfg.Without(429)
	require.True(t, cfg.RetryCodes[429])
	require.False(t, trimmed.RetryCodes[429])
	require.True(t, trimmed.RetryCodes[401])
}

func TestDecorrelatedJitterBounds(t *testing.T) {
	cfg := testConfig()
	cfg.BackoffBase = time.Second
	s := newState(cfg)
	s.attempt = 1

	for i := 0; i < 50; i++ {
		d := s.delayFor(429, 0, false)
		require.GreaterOrEqual(t, d, cfg.BackoffBase)
		require.LessOrEqual(t, d, cfg.BackoffMax)
	}
}

func TestDecorrelatedJitterPersistsLastDelay(t *testing.T) {
	cfg := testConfig()
	cfg.BackoffBase = time.Second
	s := newState(cfg)
	s.attempt = 1

	first := s.delayFor(429, 0, false)
	require.Equal(t, first, s.lastDelay)

	// second draw may reach three times the first delay
	second := s.delayFor(429, 0, false)
	require.LessOrEqual(t, second, 3*first)
}

func TestFullJitterBounds(t *testing.T) {
	cfg := testConfig()
	s := newState(cfg)
	s.attempt = 1

	for i := 0; i < 50; i++ {
		d := s.delayFor(401, 0, false)
		require.GreaterOrEqual(t, d, time.Duration(0))
		// ceiling is base * factor^attempt = 1s at attempt 1
		require.LessOrEqual(t, d, time.Second)
	}

	s.attempt = 10
	for i := 0; i < 50; i++ {
		// 0.5s * 2^10 exceeds the cap, so the cap bounds the draw
		require.LessOrEqual(t, s.delayFor(401, 0, false), cfg.BackoffMax)
	}
}

func TestUniformDurationSwapsBounds(t *testing.T) {
	// a short Retry-After can leave lastDelay*3 below the base
	d := uniformDuration(time.Second, 300*time.Millisecond)
	require.GreaterOrEqual(t, d, 300*time.Millisecond)
	require.LessOrEqual(t, d, time.Second)
}
