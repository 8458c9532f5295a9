package internal

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"gorm.io/gorm/clause"

	"github.com/fuchsia74/grok-api/common/logger"
	"github.com/fuchsia74/grok-api/model"
)

// TableInfo pairs a table name with the gorm model that describes its rows.
type TableInfo struct {
	Name  string
	Model any
}

// tableOrder lists the gateway's tables in copy order. Options go first so a
// restored target resolves its runtime settings before any token row is read.
var tableOrder = []TableInfo{
	{"options", &model.Option{}},
	{"token_infos", &model.TokenInfo{}},
	{"traces", &model.Trace{}},
}

// copyJob is one offset window of a table handed to a worker.
type copyJob struct {
	table  TableInfo
	offset int64
	limit  int
}

// copyResult reports how many rows one job moved.
type copyResult struct {
	rows int64
	err  error
}

// copyTables moves every known table from source to target, continuing past
// per-table failures so a single bad table does not strand the rest.
func (m *Migrator) copyTables(ctx context.Context, stats *Stats) error {
	for _, table := range tableOrder {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := m.copyTable(ctx, table, stats); err != nil {
			stats.Errors = append(stats.Errors, errors.Wrapf(err, "copy table %s", table.Name))
			logger.Logger.Error("table copy failed",
				zap.String("table", table.Name), zap.Error(err))
			continue
		}
		stats.TablesDone++
	}
	return nil
}

func (m *Migrator) copyTable(ctx context.Context, table TableInfo, stats *Stats) error {
	exists, err := m.source.TableExists(table.Name)
	if err != nil {
		return errors.Wrap(err, "check source table")
	}
	if !exists {
		logger.Logger.Warn("table missing in source, skipping", zap.String("table", table.Name))
		return nil
	}

	total, err := m.source.RowCount(table.Name)
	if err != nil {
		return errors.Wrap(err, "count source rows")
	}
	if total == 0 {
		logger.Logger.Info("table empty, skipping", zap.String("table", table.Name))
		return nil
	}

	logger.Logger.Info("copying table",
		zap.String("table", table.Name),
		zap.Int64("rows", total),
		zap.Int("workers", m.Workers),
		zap.Int("batch_size", m.BatchSize))

	if m.Workers > 1 {
		return m.copyTableConcurrent(ctx, table, total, stats)
	}
	return m.copyTableSequential(ctx, table, total, stats)
}

func (m *Migrator) copyTableSequential(ctx context.Context, table TableInfo, total int64, stats *Stats) error {
	var copied int64
	for offset := int64(0); offset < total; offset += int64(m.BatchSize) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rows, err := m.copyBatch(table, offset, m.BatchSize)
		if err != nil {
			return errors.Wrapf(err, "copy batch at offset %d", offset)
		}
		copied += rows
		atomic.AddInt64(&stats.RowsDone, rows)
		if rows < int64(m.BatchSize) {
			break
		}
	}

	logger.Logger.Info("table copied",
		zap.String("table", table.Name), zap.Int64("rows", copied))
	return nil
}

func (m *Migrator) copyTableConcurrent(ctx context.Context, table TableInfo, total int64, stats *Stats) error {
	jobs := make(chan copyJob, m.Workers*2)
	results := make(chan copyResult, m.Workers*2)

	var wg sync.WaitGroup
	for i := 0; i < m.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				rows, err := m.copyBatch(job.table, job.offset, job.limit)
				results <- copyResult{rows: rows, err: err}
			}
		}()
	}

	var copied int64
	var collector sync.WaitGroup
	collector.Add(1)
	go func() {
		defer collector.Done()
		for result := range results {
			if result.err != nil {
				logger.Logger.Error("batch copy failed",
					zap.String("table", table.Name), zap.Error(result.err))
				continue
			}
			atomic.AddInt64(&copied, result.rows)
			atomic.AddInt64(&stats.RowsDone, result.rows)
		}
	}()

	for offset := int64(0); offset < total; offset += int64(m.BatchSize) {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			close(results)
			collector.Wait()
			return ctx.Err()
		case jobs <- copyJob{table: table, offset: offset, limit: m.BatchSize}:
		}
	}

	close(jobs)
	wg.Wait()
	close(results)
	collector.Wait()

	logger.Logger.Info("table copied",
		zap.String("table", table.Name),
		zap.Int64("rows", atomic.LoadInt64(&copied)))
	return nil
}

// copyBatch reads one offset window from the source and upserts it into the
// target. Upsert keeps re-runs idempotent: a second pass over the same source
// overwrites rather than duplicates.
func (m *Migrator) copyBatch(table TableInfo, offset int64, limit int) (int64, error) {
	modelType := reflect.TypeOf(table.Model).Elem()
	batch := reflect.New(reflect.SliceOf(modelType)).Interface()

	if err := m.source.DB.Limit(limit).Offset(int(offset)).Find(batch).Error; err != nil {
		return 0, errors.Wrap(err, "fetch batch from source")
	}

	rows := int64(reflect.ValueOf(batch).Elem().Len())
	if rows == 0 || m.DryRun {
		return rows, nil
	}

	if err := m.target.DB.Clauses(clause.OnConflict{UpdateAll: true}).Create(batch).Error; err != nil {
		return 0, errors.Wrap(err, "upsert batch into target")
	}
	return rows, nil
}
