package pool

import (
	"context"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/fuchsia74/grok-api/common"
	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/common/graceful"
	"github.com/fuchsia74/grok-api/common/logger"
	"github.com/fuchsia74/grok-api/model"
)

// poolSaveLockKey serializes batch writes across replicas sharing one
// database. When Redis is disabled the lock is a no-op and the local
// saveMu is the only gate.
const poolSaveLockKey = "grok-api:pool:save"

const poolSaveLockTTL = 30 * time.Second

// persister batches row mutations behind a short delay so a burst of
// requests costs one transaction instead of one write per mutation.
type persister struct {
	owner  *Manager
	signal chan struct{}
	saveMu sync.Mutex

	// dirty is guarded by owner.mu; markDirty is only called with it held.
	dirty map[int]*model.TokenInfo
}

func (p *persister) init(owner *Manager) {
	p.owner = owner
	p.signal = make(chan struct{}, 1)
	p.dirty = make(map[int]*model.TokenInfo)
}

// markDirty queues a live row for the next batch. Caller holds owner.mu.
// Rows without a storage id are skipped; they have nothing to update yet.
func (p *persister) markDirty(t *model.TokenInfo) {
	if t.Id == 0 {
		return
	}
	p.dirty[t.Id] = t
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// forget drops a deleted row from the pending batch. Caller holds owner.mu.
func (p *persister) forget(id int) {
	delete(p.dirty, id)
}

// takeDirty snapshots and clears the dirty set.
func (p *persister) takeDirty() []*model.TokenInfo {
	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()

	if len(p.dirty) == 0 {
		return nil
	}
	rows := make([]*model.TokenInfo, 0, len(p.dirty))
	for _, t := range p.dirty {
		cp := *t
		rows = append(rows, &cp)
	}
	p.dirty = make(map[int]*model.TokenInfo)
	return rows
}

// requeue puts failed rows back so the next tick retries them. A row that
// was re-dirtied in the meantime keeps its newer state.
func (p *persister) requeue(rows []*model.TokenInfo) {
	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()

	for _, row := range rows {
		if _, newer := p.dirty[row.Id]; newer {
			continue
		}
		if live, ok := p.owner.byToken[row.Token]; ok {
			p.dirty[live.Id] = live
		}
	}
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// Save flushes every dirty row to storage in one transaction. Concurrent
// replicas are fenced by a shared lock; when another holds it the batch
// goes back to the dirty set and the persister retries on its next tick.
func (m *Manager) Save(ctx context.Context) error {
	m.persist.saveMu.Lock()
	defer m.persist.saveMu.Unlock()

	rows := m.persist.takeDirty()
	if len(rows) == 0 {
		return nil
	}

	locked, err := common.RedisTryLock(ctx, poolSaveLockKey, poolSaveLockTTL)
	if err != nil {
		m.persist.requeue(rows)
		return errors.Wrap(err, "acquire pool save lock")
	}
	if !locked {
		m.persist.requeue(rows)
		return nil
	}
	defer common.RedisUnlock(ctx, poolSaveLockKey)

	if err := model.SaveTokenStates(ctx, rows); err != nil {
		m.persist.requeue(rows)
		return errors.Wrap(err, "save token states")
	}
	return nil
}

// StartPersister runs the debounced save loop until ctx ends, then flushes
// one last time so shutdown never drops accounting.
func (m *Manager) StartPersister(ctx context.Context) {
	graceful.GoCritical(ctx, "token-pool-persister", m.persist.run)
}

func (p *persister) run(ctx context.Context) {
	delay := time.Duration(config.TokenSaveDelayMS) * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			p.finalFlush()
			return
		case <-p.signal:
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.finalFlush()
			return
		case <-timer.C:
		}

		if err := p.owner.Save(ctx); err != nil {
			logger.Logger.Warn("token pool save failed", zap.Error(err))
		}
	}
}

// finalFlush writes pending state with a fresh deadline; the loop context
// is already closed by the time it runs.
func (p *persister) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.owner.Save(ctx); err != nil {
		logger.Logger.Error("final token pool flush failed", zap.Error(err))
	}
}
