package internal

import (
	"fmt"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/fuchsia74/grok-api/common"
	"github.com/fuchsia74/grok-api/common/logger"
)

// Conn wraps a live gorm handle together with how it was opened.
type Conn struct {
	DB   *gorm.DB
	Type string
	DSN  string
}

// ExtractDatabaseTypeFromDSN infers the engine from the DSN shape. Bare
// paths count as SQLite files, which matches how the gateway stores its
// default database.
func ExtractDatabaseTypeFromDSN(dsn string) (string, error) {
	trimmed := strings.TrimSpace(dsn)
	switch {
	case trimmed == "":
		return "", errors.New("empty DSN")
	case strings.HasPrefix(trimmed, "sqlite://"):
		return "sqlite", nil
	case strings.HasPrefix(trimmed, "mysql://"), strings.Contains(trimmed, "@tcp("):
		return "mysql", nil
	case strings.HasPrefix(trimmed, "postgres://"), strings.HasPrefix(trimmed, "postgresql://"):
		return "postgres", nil
	case strings.Contains(trimmed, "host="), strings.Contains(trimmed, "dbname="):
		return "postgres", nil
	default:
		return "sqlite", nil
	}
}

// Connect opens the database described by dsn and verifies it answers.
func Connect(dsn string) (*Conn, error) {
	dbType, err := ExtractDatabaseTypeFromDSN(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "determine database type")
	}

	var db *gorm.DB
	gormCfg := &gorm.Config{
		PrepareStmt: true,
		Logger:      gormlogger.Default.LogMode(gormlogger.Silent),
	}

	switch dbType {
	case "sqlite":
		path := strings.TrimPrefix(dsn, "sqlite://")
		if !strings.Contains(path, "_busy_timeout") {
			sep := "?"
			if strings.Contains(path, "?") {
				sep = "&"
			}
			path += fmt.Sprintf("%s_busy_timeout=%d", sep, common.SQLiteBusyTimeout)
		}
		db, err = gorm.Open(sqlite.Open(path), gormCfg)
	case "mysql":
		normalized, normErr := common.NormalizeMySQLDSN(dsn)
		if normErr != nil {
			return nil, errors.Wrap(normErr, "normalize MySQL DSN")
		}
		db, err = gorm.Open(mysql.Open(normalized), gormCfg)
	case "postgres":
		db, err = gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), gormCfg)
	default:
		return nil, errors.Errorf("unsupported database type: %s", dbType)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %s database", dbType)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get underlying sql.DB")
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, errors.Wrapf(err, "ping %s database", dbType)
	}

	logger.Logger.Info("connected to database", zap.String("type", dbType))

	return &Conn{DB: db, Type: dbType, DSN: dsn}, nil
}

// Close releases the underlying connection pool.
func (c *Conn) Close() error {
	if c.DB == nil {
		return nil
	}

	sqlDB, err := c.DB.DB()
	if err != nil {
		return errors.Wrap(err, "get underlying sql.DB")
	}
	if err := sqlDB.Close(); err != nil {
		return errors.Wrapf(err, "close %s database connection", c.Type)
	}

	return nil
}

// RowCount returns the number of rows in a table.
func (c *Conn) RowCount(tableName string) (int64, error) {
	var count int64
	if err := c.DB.Table(tableName).Count(&count).Error; err != nil {
		return 0, errors.Wrapf(err, "count rows in table %s", tableName)
	}
	return count, nil
}

// TableExists checks whether a table is present in the database.
func (c *Conn) TableExists(tableName string) (bool, error) {
	var exists bool
	var err error

	switch c.Type {
	case "sqlite":
		err = c.DB.Raw("SELECT COUNT(*) > 0 FROM sqlite_master WHERE type='table' AND name=?", tableName).Scan(&exists).Error
	case "mysql":
		err = c.DB.Raw("SELECT COUNT(*) > 0 FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?", tableName).Scan(&exists).Error
	case "postgres":
		err = c.DB.Raw("SELECT COUNT(*) > 0 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = ?", tableName).Scan(&exists).Error
	default:
		return false, errors.Errorf("unsupported database type for table existence check: %s", c.Type)
	}
	if err != nil {
		return false, errors.Wrapf(err, "check if table %s exists", tableName)
	}

	return exists, nil
}

// Validate runs a trivial query to prove the connection works end to end.
func (c *Conn) Validate() error {
	var result int
	if err := c.DB.Raw("SELECT 1").Scan(&result).Error; err != nil {
		return errors.Wrap(err, "execute test query")
	}
	if result != 1 {
		return errors.Errorf("unexpected result from test query: got %d, expected 1", result)
	}
	return nil
}
