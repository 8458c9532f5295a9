package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
)

// StartLogRetentionCleaner launches a background worker that deletes log
// files older than retentionDays from logDir. The sweep runs once at startup
// and then every 24 hours until ctx is cancelled. A retentionDays of zero or
// less disables cleanup.
func StartLogRetentionCleaner(ctx context.Context, retentionDays int, logDir string) {
	if retentionDays <= 0 {
		Logger.Debug("log retention disabled", zap.Int("log_retention_days", retentionDays))
		return
	}
	if strings.TrimSpace(logDir) == "" {
		Logger.Warn("log retention enabled but log directory is empty",
			zap.Int("log_retention_days", retentionDays))
		return
	}

	sweep := func() {
		if err := deleteExpiredLogFiles(retentionDays, logDir); err != nil {
			Logger.Warn("log retention sweep failed", zap.Error(err))
		}
	}

	sweep()

	ticker := time.NewTicker(24 * time.Hour)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				Logger.Info("log retention cleaner stopped", zap.Error(ctx.Err()))
				return
			case <-ticker.C:
				sweep()
			}
		}
	}()

	Logger.Info("log retention cleaner started",
		zap.Int("log_retention_days", retentionDays), zap.String("log_dir", logDir))
}

// deleteExpiredLogFiles removes *.log files in logDir whose mtime is older
// than the retention window. A missing directory is not an error.
func deleteExpiredLogFiles(retentionDays int, logDir string) error {
	entries, err := os.ReadDir(logDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "read log directory")
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".log") {
			continue
		}

		info, infoErr := entry.Info()
		if infoErr != nil {
			Logger.Warn("skip log file without metadata",
				zap.String("log_path", filepath.Join(logDir, entry.Name())), zap.Error(infoErr))
			continue
		}
		if !info.ModTime().UTC().Before(cutoff) {
			continue
		}

		fullPath := filepath.Join(logDir, entry.Name())
		if removeErr := os.Remove(fullPath); removeErr != nil {
			Logger.Warn("delete expired log file", zap.String("log_path", fullPath), zap.Error(removeErr))
			continue
		}
		Logger.Info("deleted expired log file",
			zap.String("log_path", fullPath), zap.Time("modified_at", info.ModTime().UTC()))
	}

	return nil
}
