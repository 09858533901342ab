package usage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"tourly/internal/pkg/async"
	"tourly/internal/steps"
)

// TourStatistics aggregates a tour's full usage history. Figures are
// derived from the append-only history log, so resets of the show-again
// flag do not distort them; UsersCompleted alone comes from the state
// table's completion counters.
type TourStatistics struct {
	TourID          int64      `json:"tour_id"`
	TotalStarts     int64      `json:"total_starts"`
	UniqueUsers     int64      `json:"unique_users"`
	FirstUsage      *time.Time `json:"first_usage"`
	LastUsage       *time.Time `json:"last_usage"`
	UsageLast7Days  int64      `json:"usage_last_7_days"`
	UsageLast30Days int64      `json:"usage_last_30_days"`
	TerminatedCount int64      `json:"terminated_count"`
	ActiveCount     int64      `json:"active_count"`
	CompletedCount  int64      `json:"completed_count"`
	PartialCount    int64      `json:"partial_count"`
	UsersCompleted  int64      `json:"users_completed"`
	AvgStepReached  float64    `json:"avg_step_reached"`
}

// GetTourStatistics computes the aggregate statistics of one tour from its
// usage history. A run counts as completed when it was terminated after
// reaching the tour's last step.
func GetTourStatistics(db *gorm.DB, tourID int64) (*TourStatistics, error) {
	stats := &TourStatistics{TourID: tourID}

	base := func() *gorm.DB {
		return db.Model(&TourUsageEntry{}).Where("tour_id = ?", tourID)
	}

	if err := base().Count(&stats.TotalStarts).Error; err != nil {
		return nil, fmt.Errorf("failed to count tour starts: %w", err)
	}
	if stats.TotalStarts == 0 {
		return stats, nil
	}

	if err := base().Distinct("user_id").Count(&stats.UniqueUsers).Error; err != nil {
		return nil, fmt.Errorf("failed to count unique users: %w", err)
	}

	// SQLite loses the column's time affinity under MIN/MAX aggregates, so
	// read the boundary rows instead and let gorm deserialize the column.
	var firstEntry, lastEntry TourUsageEntry
	if err := base().Order("started_at ASC").Limit(1).Find(&firstEntry).Error; err != nil {
		return nil, fmt.Errorf("failed to get first usage: %w", err)
	}
	if err := base().Order("started_at DESC").Limit(1).Find(&lastEntry).Error; err != nil {
		return nil, fmt.Errorf("failed to get last usage: %w", err)
	}
	first, last := firstEntry.StartedAt, lastEntry.StartedAt
	stats.FirstUsage = &first
	stats.LastUsage = &last

	now := time.Now().UTC()
	if err := base().Where("started_at >= ?", now.AddDate(0, 0, -7)).
		Count(&stats.UsageLast7Days).Error; err != nil {
		return nil, fmt.Errorf("failed to count recent usage: %w", err)
	}
	if err := base().Where("started_at >= ?", now.AddDate(0, 0, -30)).
		Count(&stats.UsageLast30Days).Error; err != nil {
		return nil, fmt.Errorf("failed to count recent usage: %w", err)
	}

	if err := base().Where("terminated_at IS NOT NULL").
		Count(&stats.TerminatedCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count terminated runs: %w", err)
	}
	stats.ActiveCount = stats.TotalStarts - stats.TerminatedCount

	stepList, err := steps.GetStepsByTourID(db, tourID)
	if err != nil {
		return nil, err
	}
	lastIndex := len(stepList) - 1

	if err := base().
		Where("terminated_at IS NOT NULL AND last_step_reached >= ?", lastIndex).
		Count(&stats.CompletedCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count completed runs: %w", err)
	}
	stats.PartialCount = stats.TerminatedCount - stats.CompletedCount

	// Counted from the state table, not the history: a user who completed
	// the tour stays counted even after steps are added later.
	if err := db.Model(&UserTourState{}).
		Where("tour_id = ? AND times_completed > 0", tourID).
		Count(&stats.UsersCompleted).Error; err != nil {
		return nil, fmt.Errorf("failed to count completed users: %w", err)
	}

	// Average furthest step per user, 1-based so "never moved past the
	// first step" averages to 1 rather than 0.
	var avg *float64
	if err := db.Raw(`
		SELECT AVG(furthest) FROM (
			SELECT MAX(last_step_reached) + 1 AS furthest
			FROM tour_usage_entries
			WHERE tour_id = ?
			GROUP BY user_id
		)`, tourID).Scan(&avg).Error; err != nil {
		return nil, fmt.Errorf("failed to compute average step reached: %w", err)
	}
	if avg != nil {
		stats.AvgStepReached = *avg
	}

	return stats, nil
}

// GetAllToursStatistics computes statistics for every tour with recorded
// usage, fanning the per-tour work out over a small worker pool. Tours
// whose computation fails are skipped rather than failing the whole set.
func GetAllToursStatistics(ctx context.Context, db *gorm.DB) (map[int64]*TourStatistics, error) {
	var tourIDs []int64
	if err := db.Model(&TourUsageEntry{}).
		Distinct("tour_id").
		Order("tour_id").
		Pluck("tour_id", &tourIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to list tours with usage: %w", err)
	}

	result := make(map[int64]*TourStatistics, len(tourIDs))
	if len(tourIDs) == 0 {
		return result, nil
	}

	tasks := make([]async.Task[*TourStatistics], len(tourIDs))
	for i, id := range tourIDs {
		tourID := id
		tasks[i] = async.Task[*TourStatistics]{
			Name: strconv.FormatInt(tourID, 10),
			Execute: func() (*TourStatistics, error) {
				return GetTourStatistics(db, tourID)
			},
		}
	}

	pool := async.NewPool[*TourStatistics](4)
	for _, res := range pool.Execute(ctx, tasks) {
		if res.Err != nil || res.Value == nil {
			continue
		}
		result[res.Value.TourID] = res.Value
	}

	return result, nil
}
