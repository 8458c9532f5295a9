package pool

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Laisky/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/common/helper"
	"github.com/fuchsia74/grok-api/common/logger"
	"github.com/fuchsia74/grok-api/model"
	"github.com/fuchsia74/grok-api/relay/grok"
	"github.com/fuchsia74/grok-api/relay/retry"
)

// DefaultProbeModel is what the quota probe asks about when the caller has
// no specific model in hand (admin usage sync, cooling refresh).
const DefaultProbeModel = "grok-4-1-thinking-1129"

// SyncUsage probes the token's remaining upstream quota and folds it into
// the pool state: quota follows remainingQueries, status recomputes, and
// last_sync_at stamps now. A short probe cache absorbs bursty syncs of the
// same token and model. Probe failures leave the row untouched; only
// serving traffic expires tokens.
func (m *Manager) SyncUsage(ctx context.Context, tokenStr, modelName string) (*grok.RateLimitSnapshot, error) {
	if modelName == "" {
		modelName = DefaultProbeModel
	}

	cacheKey := modelName + "|" + tokenStr
	if cached, ok := m.probeCache.Get(cacheKey); ok {
		snap := cached.(*grok.RateLimitSnapshot)
		m.applyUsage(tokenStr, snap)
		return snap, nil
	}

	var snap *grok.RateLimitSnapshot
	err := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
		var probeErr error
		snap, probeErr = grok.QueryRateLimits(ctx, tokenStr, modelName)
		return probeErr
	})
	if err != nil {
		return nil, err
	}

	m.probeCache.SetDefault(cacheKey, snap)
	m.applyUsage(tokenStr, snap)
	return snap, nil
}

func (m *Manager) applyUsage(tokenStr string, snap *grok.RateLimitSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.byToken[tokenStr]
	if !ok {
		return
	}
	t.Quota = snap.RemainingQueries
	t.LastSyncAt = helper.GetTimestampMilli()
	RecomputeState(t)
	m.persist.markDirty(t)
}

// needRefresh reports whether a cooling token's last probe is stale enough
// to try again. Super-pool quota windows reset faster, so those re-probe
// sooner. A never-probed token qualifies immediately.
func needRefresh(t *model.TokenInfo, now time.Time) bool {
	if t.Status != model.TokenStatusCooling {
		return false
	}
	if t.LastSyncAt == 0 {
		return true
	}
	hours := config.TokenRefreshIntervalHours
	if t.Pool == model.PoolSuper {
		hours = config.TokenSuperRefreshIntervalHours
	}
	return now.Sub(time.UnixMilli(t.LastSyncAt)) > time.Duration(hours)*time.Hour
}

// RefreshCoolingTokens re-probes every cooling token whose last sync has
// aged out and returns how many came back active. The entrypoints call
// this once on a pool miss before giving up on a request.
func (m *Manager) RefreshCoolingTokens(ctx context.Context) int {
	now := time.Now()

	m.mu.Lock()
	var stale []string
	for _, rows := range m.pools {
		for _, t := range rows {
			if needRefresh(t, now) {
				stale = append(stale, t.Token)
			}
		}
	}
	m.mu.Unlock()

	if len(stale) == 0 {
		return 0
	}

	var recovered atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, config.UsageMaxConcurrent))
	for _, tokenStr := range stale {
		g.Go(func() error {
			if _, err := m.SyncUsage(gctx, tokenStr, ""); err != nil {
				logger.Logger.Debug("cooling token re-probe failed",
					zap.String("token", helper.MaskToken(tokenStr)),
					zap.Error(err))
				return nil
			}
			if t := m.Lookup(tokenStr); t != nil && t.Status == model.TokenStatusActive {
				recovered.Add(1)
			}
			return nil
		})
	}
	// workers swallow their own errors
	_ = g.Wait()

	n := int(recovered.Load())
	if n > 0 {
		logger.Logger.Info("cooling tokens recovered",
			zap.Int("probed", len(stale)),
			zap.Int("recovered", n))
	}
	return n
}
