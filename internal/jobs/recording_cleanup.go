package jobs

import (
	"log/slog"

	"tourly/internal/config"
	"tourly/internal/database"
	"tourly/internal/recording"
	"tourly/internal/settings"
)

// RecordingCleanupJob purges recording sessions that have been idle beyond
// the configured TTL. An abandoned recorder tab should not keep a session
// (and its tour lock) around forever.
type RecordingCleanupJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	cfg       *config.Config
}

func NewRecordingCleanupJob(dbManager *database.DBManager, logger *slog.Logger, cfg *config.Config) *RecordingCleanupJob {
	return &RecordingCleanupJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run deletes stale recording sessions. The TTL comes from the runtime
// settings, falling back to the built-in default.
func (j *RecordingCleanupJob) Run() error {
	db := j.dbManager.GetConnection()
	ttl := settings.GetPlayerConfig(db).RecordingTTL

	removed, err := recording.CleanupStale(db, j.logger, ttl)
	if err != nil {
		j.logger.Error("Failed to clean up recording sessions", slog.Any("error", err))
		return err
	}

	if removed > 0 {
		j.logger.Info("Cleaned up stale recording sessions",
			slog.Int64("removed", removed),
			slog.Duration("ttl", ttl))
	}
	return nil
}
