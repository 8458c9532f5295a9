package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/fuchsia74/grok-api/common/logger"
	"github.com/fuchsia74/grok-api/model"
)

// Migrator copies the gateway's tables (token pool, options, traces) from one
// database to another, e.g. when promoting the default SQLite file to MySQL
// or PostgreSQL for a multi-process deployment.
type Migrator struct {
	SourceDSN string
	TargetDSN string
	DryRun    bool
	Workers   int
	BatchSize int

	source *Conn
	target *Conn
}

// Stats accumulates progress over one migration run.
type Stats struct {
	StartTime  time.Time
	EndTime    time.Time
	TablesDone int
	RowsTotal  int64
	RowsDone   int64
	Errors     []error
}

// Migrate runs the whole pipeline: connect, validate, create target schema,
// copy rows, then compare row counts.
func (m *Migrator) Migrate(ctx context.Context) error {
	stats := &Stats{StartTime: time.Now()}

	logger.Logger.Info("starting database migration",
		zap.String("source", m.SourceDSN),
		zap.String("target", m.TargetDSN),
		zap.Bool("dry_run", m.DryRun))

	if err := m.connect(); err != nil {
		return errors.Wrap(err, "connect databases")
	}
	defer m.close()

	if err := m.validate(); err != nil {
		return errors.Wrap(err, "validate connections")
	}

	if err := m.countSource(stats); err != nil {
		return errors.Wrap(err, "analyze source")
	}

	if !m.DryRun {
		if err := m.prepareTarget(); err != nil {
			return errors.Wrap(err, "prepare target")
		}
	}

	if err := m.copyTables(ctx, stats); err != nil {
		return errors.Wrap(err, "copy tables")
	}

	if !m.DryRun {
		if m.target.Type == "postgres" {
			if err := m.fixPostgresSequences(); err != nil {
				return errors.Wrap(err, "fix postgres sequences")
			}
		}
		if err := m.verifyCounts(); err != nil {
			return errors.Wrap(err, "verify row counts")
		}
	}

	stats.EndTime = time.Now()
	m.report(stats)
	return nil
}

// ValidateOnly checks both connections and reports what a run would copy,
// without touching the target.
func (m *Migrator) ValidateOnly(ctx context.Context) error {
	if err := m.connect(); err != nil {
		return errors.Wrap(err, "connect databases")
	}
	defer m.close()

	if err := m.validate(); err != nil {
		return errors.Wrap(err, "validate connections")
	}

	stats := &Stats{StartTime: time.Now()}
	if err := m.countSource(stats); err != nil {
		return errors.Wrap(err, "analyze source")
	}

	logger.Logger.Info("validation completed",
		zap.Int64("rows_to_copy", stats.RowsTotal))
	return nil
}

func (m *Migrator) connect() error {
	var err error
	if m.source, err = Connect(m.SourceDSN); err != nil {
		return errors.Wrap(err, "connect source")
	}
	if m.target, err = Connect(m.TargetDSN); err != nil {
		return errors.Wrap(err, "connect target")
	}
	return nil
}

func (m *Migrator) close() {
	if m.source != nil {
		if err := m.source.Close(); err != nil {
			logger.Logger.Error("close source database", zap.Error(err))
		}
	}
	if m.target != nil {
		if err := m.target.Close(); err != nil {
			logger.Logger.Error("close target database", zap.Error(err))
		}
	}
}

func (m *Migrator) validate() error {
	if err := m.source.Validate(); err != nil {
		return errors.Wrap(err, "source database")
	}
	if err := m.target.Validate(); err != nil {
		return errors.Wrap(err, "target database")
	}
	if m.source.Type == m.target.Type && m.source.DSN == m.target.DSN {
		return errors.New("source and target databases are the same")
	}
	return nil
}

func (m *Migrator) countSource(stats *Stats) error {
	for _, table := range tableOrder {
		exists, err := m.source.TableExists(table.Name)
		if err != nil {
			return errors.Wrapf(err, "check table %s", table.Name)
		}
		if !exists {
			continue
		}
		count, err := m.source.RowCount(table.Name)
		if err != nil {
			return errors.Wrapf(err, "count table %s", table.Name)
		}
		stats.RowsTotal += count
		logger.Logger.Info("source table",
			zap.String("table", table.Name), zap.Int64("rows", count))
	}
	return nil
}

// prepareTarget creates the target schema with the same AutoMigrate calls the
// gateway itself runs at startup.
func (m *Migrator) prepareTarget() error {
	if err := m.target.DB.AutoMigrate(&model.Option{}); err != nil {
		return errors.Wrap(err, "migrate Option")
	}
	if err := m.target.DB.AutoMigrate(&model.TokenInfo{}); err != nil {
		return errors.Wrap(err, "migrate TokenInfo")
	}
	if err := m.target.DB.AutoMigrate(&model.Trace{}); err != nil {
		return errors.Wrap(err, "migrate Trace")
	}
	return nil
}

// fixPostgresSequences bumps each serial sequence past the copied max id so
// new inserts on the target do not collide with migrated rows. The options
// table is keyed by name and needs no fix.
func (m *Migrator) fixPostgresSequences() error {
	for _, tableName := range []string{"token_infos", "traces"} {
		var maxID int64
		err := m.target.DB.Table(tableName).Select("COALESCE(MAX(id), 0)").Scan(&maxID).Error
		if err != nil {
			return errors.Wrapf(err, "max id of %s", tableName)
		}
		if maxID == 0 {
			continue
		}
		seq := fmt.Sprintf("SELECT setval('%s_id_seq', %d, true)", tableName, maxID)
		if err := m.target.DB.Exec(seq).Error; err != nil {
			return errors.Wrapf(err, "setval for %s", tableName)
		}
	}
	return nil
}

func (m *Migrator) verifyCounts() error {
	var mismatches []error
	for _, table := range tableOrder {
		exists, err := m.source.TableExists(table.Name)
		if err != nil || !exists {
			continue
		}
		sourceCount, err := m.source.RowCount(table.Name)
		if err != nil {
			mismatches = append(mismatches, errors.Wrapf(err, "source count %s", table.Name))
			continue
		}
		targetCount, err := m.target.RowCount(table.Name)
		if err != nil {
			mismatches = append(mismatches, errors.Wrapf(err, "target count %s", table.Name))
			continue
		}
		if sourceCount != targetCount {
			mismatches = append(mismatches,
				errors.Errorf("row count mismatch for %s: source=%d target=%d",
					table.Name, sourceCount, targetCount))
		}
	}
	if len(mismatches) > 0 {
		for _, err := range mismatches {
			logger.Logger.Error("verification error", zap.Error(err))
		}
		return errors.Errorf("verification failed with %d errors", len(mismatches))
	}
	return nil
}

func (m *Migrator) report(stats *Stats) {
	logger.Logger.Info("migration finished",
		zap.Duration("duration", stats.EndTime.Sub(stats.StartTime)),
		zap.Int("tables_done", stats.TablesDone),
		zap.Int64("rows_done", stats.RowsDone),
		zap.Int64("rows_total", stats.RowsTotal),
		zap.Int("errors", len(stats.Errors)))
	for _, err := range stats.Errors {
		logger.Logger.Error("migration error", zap.Error(err))
	}
}
