package jobs

import (
	"log/slog"
	"time"

	"tourly/internal/config"
	"tourly/internal/database"
	"tourly/internal/usage"
)

// UsageRetentionJob trims closed usage history entries older than the
// retention period. Per-user tour state is kept: it is what decides
// whether a tour is shown again, history is only for statistics.
type UsageRetentionJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	cfg       *config.Config
}

func NewUsageRetentionJob(dbManager *database.DBManager, logger *slog.Logger, cfg *config.Config) *UsageRetentionJob {
	return &UsageRetentionJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run removes terminated usage entries older than the retention period.
func (j *UsageRetentionJob) Run() error {
	retentionDays := j.cfg.UsageHistoryRetentionDays
	db := j.dbManager.GetConnection()
	cutoffDate := time.Now().AddDate(0, 0, -retentionDays)

	j.logger.Info("Starting cleanup of old usage history",
		slog.Int("retention_days", retentionDays),
		slog.Time("cutoff_date", cutoffDate))

	var countToDelete int64
	if err := db.Model(&usage.TourUsageEntry{}).
		Where("terminated_at IS NOT NULL AND started_at < ?", cutoffDate).
		Count(&countToDelete).Error; err != nil {
		j.logger.Error("Failed to count old usage entries", slog.Any("error", err))
		return err
	}

	if countToDelete == 0 {
		j.logger.Debug("No old usage entries to clean up")
		return nil
	}

	// Delete in batches to avoid locking the database for too long
	batchSize := 1000
	totalDeleted := int64(0)

	for {
		result := db.Where("terminated_at IS NOT NULL AND started_at < ?", cutoffDate).
			Limit(batchSize).
			Delete(&usage.TourUsageEntry{})

		if result.Error != nil {
			j.logger.Error("Failed to delete old usage entries",
				slog.Any("error", result.Error),
				slog.Int64("deleted_so_far", totalDeleted))
			return result.Error
		}

		totalDeleted += result.RowsAffected

		if result.RowsAffected < int64(batchSize) {
			break
		}

		// Small delay between batches to prevent database lock contention
		time.Sleep(100 * time.Millisecond)
	}

	j.logger.Info("Cleaned up old usage history",
		slog.Int64("deleted_count", totalDeleted),
		slog.Int("retention_days", retentionDays))

	return nil
}
