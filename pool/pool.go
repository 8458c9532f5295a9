// Package pool schedules upstream session credentials. It owns an in-memory
// ordered view of every stored token, hands out active ones in insertion
// order, accounts quota per request, tracks consecutive auth failures and
// recovers cooling tokens by re-probing their upstream quota. All mutations
// mark rows dirty for the batched persister.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	gocache "github.com/patrickmn/go-cache"

	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/common/helper"
	"github.com/fuchsia74/grok-api/common/logger"
	"github.com/fuchsia74/grok-api/model"
	"github.com/fuchsia74/grok-api/relay/routing"
)

// Fresh credentials start with the pool's default quota until the first
// upstream probe reports the real remainder.
const (
	DefaultQuotaBasic = 80
	DefaultQuotaSuper = 140
)

// DefaultQuotaFor returns the boot quota of a pool.
func DefaultQuotaFor(pool string) int {
	if pool == model.PoolSuper {
		return DefaultQuotaSuper
	}
	return DefaultQuotaBasic
}

// Manager is the process-wide credential scheduler. Reads hand out
// snapshots; every mutation happens under the manager mutex keyed by token
// string so callers never share row pointers.
type Manager struct {
	mu       sync.Mutex
	pools    map[string][]*model.TokenInfo
	byToken  map[string]*model.TokenInfo
	loadedAt time.Time

	persist    persister
	probeCache *gocache.Cache
}

var (
	defaultManager *Manager
	defaultOnce    sync.Once
)

// Default returns the singleton manager. InitDefault must have loaded it
// before traffic arrives; using it unloaded just yields empty pools.
func Default() *Manager {
	defaultOnce.Do(func() {
		defaultManager = NewManager()
	})
	return defaultManager
}

// NewManager builds an empty manager. Call Load before use.
func NewManager() *Manager {
	probeTTL := time.Duration(config.RateLimitProbeCacheSec) * time.Second
	m := &Manager{
		pools:      make(map[string][]*model.TokenInfo),
		byToken:    make(map[string]*model.TokenInfo),
		probeCache: gocache.New(probeTTL, 2*probeTTL),
	}
	m.persist.init(m)
	return m
}

// InitDefault loads the singleton from storage and starts its background
// persister.
func InitDefault(ctx context.Context) error {
	m := Default()
	if err := m.Load(ctx); err != nil {
		return err
	}
	m.StartPersister(ctx)
	return nil
}

// Load replaces the in-memory view with the stored rows. Pending dirty
// state is flushed first so a reload never loses accounting.
func (m *Manager) Load(ctx context.Context) error {
	if err := m.Save(ctx); err != nil {
		logger.Logger.Warn("flush before pool reload failed", zap.Error(err))
	}

	rows, err := model.AllTokens("")
	if err != nil {
		return errors.Wrap(err, "load token pool")
	}

	pools := make(map[string][]*model.TokenInfo)
	byToken := make(map[string]*model.TokenInfo, len(rows))
	for _, row := range rows {
		if _, dup := byToken[row.Token]; dup {
			// token strings are unique across pools; keep the first row
			continue
		}
		pools[row.Pool] = append(pools[row.Pool], row)
		byToken[row.Token] = row
	}

	m.mu.Lock()
	m.pools = pools
	m.byToken = byToken
	m.loadedAt = time.Now()
	m.mu.Unlock()

	logger.Logger.Info("token pool loaded",
		zap.Int("tokens", len(rows)),
		zap.Int("pools", len(pools)))
	return nil
}

// ReloadIfStale refreshes the in-memory view when it is older than the
// reload threshold, so multi-process deployments converge on shared storage.
func (m *Manager) ReloadIfStale(ctx context.Context) error {
	m.mu.Lock()
	stale := time.Since(m.loadedAt) > time.Duration(config.TokenReloadIntervalSec)*time.Second
	m.mu.Unlock()
	if !stale {
		return nil
	}
	return m.Load(ctx)
}

// snapshot returns a copy of the row so callers cannot race the manager.
func snapshot(t *model.TokenInfo) *model.TokenInfo {
	cp := *t
	return &cp
}

// Adopt folds freshly stored rows into the live view so an admin insert
// takes effect without a full reload. Rows already present are skipped.
func (m *Manager) Adopt(rows ...*model.TokenInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range rows {
		if _, dup := m.byToken[row.Token]; dup {
			continue
		}
		cp := *row
		m.pools[cp.Pool] = append(m.pools[cp.Pool], &cp)
		m.byToken[cp.Token] = &cp
	}
}

// Remove drops a token from the live view after an admin delete.
func (m *Manager) Remove(tokenStr string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.byToken[tokenStr]
	if !ok {
		return
	}
	delete(m.byToken, tokenStr)
	rows := m.pools[t.Pool]
	for i, row := range rows {
		if row.Token == tokenStr {
			m.pools[t.Pool] = append(rows[:i], rows[i+1:]...)
			break
		}
	}
	m.persist.forget(t.Id)
}

// GetToken scans one pool in insertion order and returns the first active
// token not in exclude. Cooling, expired and disabled rows are never
// returned. Nil means the pool has nothing to offer.
func (m *Manager) GetToken(pool string, exclude map[string]bool) *model.TokenInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.pools[pool] {
		if t.Status != model.TokenStatusActive {
			continue
		}
		if exclude[t.Token] {
			continue
		}
		return snapshot(t)
	}
	return nil
}

// GetFromCandidates scans the given pools in order and returns the first
// active token across them.
func (m *Manager) GetFromCandidates(candidates []string, exclude map[string]bool) *model.TokenInfo {
	for _, pool := range candidates {
		if t := m.GetToken(pool, exclude); t != nil {
			return t
		}
	}
	return nil
}

// GetTokenForVideo picks a credential tier by render weight: 720p or
// longer-than-six-second renders draw from the super pool first, falling
// back to basic on a miss.
func (m *Manager) GetTokenForVideo(resolution string, videoLength int, exclude map[string]bool) *model.TokenInfo {
	return m.GetFromCandidates(routing.PoolCandidatesForVideo(resolution, videoLength), exclude)
}

// RecomputeState applies the quota/status invariant: zero quota parks an
// active token in cooling, regained quota reactivates a cooling one.
// Expired and disabled rows only move via admin reset. The admin update
// handler runs it too so a patched row re-enters the pool lawfully.
func RecomputeState(t *model.TokenInfo) {
	switch t.Status {
	case model.TokenStatusActive:
		if t.Quota == 0 {
			t.Status = model.TokenStatusCooling
		}
	case model.TokenStatusCooling:
		if t.Quota > 0 {
			t.Status = model.TokenStatusActive
		}
	}
}

// Consume charges one finished request against the token: quota drops by
// the effort cost clamped at zero, use_count grows by what was actually
// charged. fail_count is left alone so an error path followed by consume
// keeps its failure history. Returns the actual cost, or -1 for unknown
// tokens.
func (m *Manager) Consume(tokenStr string, effort routing.Effort) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.byToken[tokenStr]
	if !ok {
		return -1
	}

	actual := min(int(effort), t.Quota)
	t.LastUsedAt = helper.GetTimestampMilli()
	t.UseCount += actual
	t.Quota -= actual
	RecomputeState(t)

	m.persist.markDirty(t)
	return actual
}

// RecordFail counts an upstream auth failure. Only 401 increments the
// consecutive failure tally; at the threshold the token expires and leaves
// rotation until an admin resets it.
func (m *Manager) RecordFail(tokenStr string, status int, reason string) {
	if status != 401 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.byToken[tokenStr]
	if !ok {
		return
	}

	t.FailCount++
	t.LastFailAt = helper.GetTimestampMilli()
	t.LastFailReason = reason
	if t.FailCount >= config.TokenFailThreshold {
		t.Status = model.TokenStatusExpired
		logger.Logger.Warn("token expired after consecutive auth failures",
			zap.String("token", helper.MaskToken(tokenStr)),
			zap.Int("fail_count", t.FailCount),
			zap.String("reason", reason))
	}

	m.persist.markDirty(t)
}

// RecordSuccess clears the failure tally after a working upstream call.
// When isUsage is set it also bumps the use counter and recency stamp.
func (m *Manager) RecordSuccess(tokenStr string, isUsage bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.byToken[tokenStr]
	if !ok {
		return
	}

	t.FailCount = 0
	t.LastFailAt = 0
	t.LastFailReason = ""
	if isUsage {
		t.UseCount++
		t.LastUsedAt = helper.GetTimestampMilli()
	}
	RecomputeState(t)

	m.persist.markDirty(t)
}

// MarkRateLimited parks the token in cooling after an upstream 429. The
// cooling sweep re-probes it once its sync stamp ages past the refresh
// interval.
func (m *Manager) MarkRateLimited(tokenStr string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.byToken[tokenStr]
	if !ok {
		return
	}
	if t.Status == model.TokenStatusActive || t.Status == model.TokenStatusCooling {
		t.Status = model.TokenStatusCooling
		m.persist.markDirty(t)
	}
}

// AddTag appends a tag to the token's tag set.
func (m *Manager) AddTag(tokenStr, tag string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.byToken[tokenStr]
	if !ok {
		return
	}
	if t.AddTag(tag) {
		m.persist.markDirty(t)
	}
}

// MarkAssetClear stamps the last successful account-wide asset wipe.
func (m *Manager) MarkAssetClear(tokenStr string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.byToken[tokenStr]
	if !ok {
		return
	}
	t.LastAssetClearAt = helper.GetTimestampMilli()
	m.persist.markDirty(t)
}

// Lookup returns a snapshot of one token's row, nil when unknown.
func (m *Manager) Lookup(tokenStr string) *model.TokenInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.byToken[tokenStr]
	if !ok {
		return nil
	}
	return snapshot(t)
}

// All returns snapshots of every token in one pool ("" for all), insertion
// ordered, for the admin surface.
func (m *Manager) All(pool string) []*model.TokenInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.TokenInfo
	if pool != "" {
		for _, t := range m.pools[pool] {
			out = append(out, snapshot(t))
		}
		return out
	}
	for _, rows := range m.pools {
		for _, t := range rows {
			out = append(out, snapshot(t))
		}
	}
	return out
}

// Stats aggregates per-pool health counts for the status endpoint.
type Stats struct {
	Total      int `json:"total"`
	Active     int `json:"active"`
	Cooling    int `json:"cooling"`
	Expired    int `json:"expired"`
	Disabled   int `json:"disabled"`
	TotalQuota int `json:"total_quota"`
}

// PoolStats reports the health of one pool.
func (m *Manager) PoolStats(pool string) Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s Stats
	for _, t := range m.pools[pool] {
		s.Total++
		s.TotalQuota += t.Quota
		switch t.Status {
		case model.TokenStatusActive:
			s.Active++
		case model.TokenStatusCooling:
			s.Cooling++
		case model.TokenStatusExpired:
			s.Expired++
		case model.TokenStatusDisabled:
			s.Disabled++
		}
	}
	return s
}
