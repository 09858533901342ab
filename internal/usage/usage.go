// Package usage tracks per-user tour runs: a mutable per-(tour,user) state
// row with counters and flags, plus an append-only history log used for
// statistics. Operations are ordinary read-modify-write sequences; two
// concurrent requests for the same pair (two tabs) can race and duplicate a
// history entry. That is an accepted property of analytics data here, so no
// cross-request locking is layered on top.
package usage

import (
	"errors"
	"fmt"
	"time"

	"log/slog"

	"gorm.io/gorm"

	"tourly/internal/models"
	"tourly/internal/tours"
)

// UserTourState is the single mutable summary record per (tour,user).
type UserTourState struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	TourID           int64      `gorm:"not null;uniqueIndex:idx_state_tour_user" json:"tour_id"`
	UserID           int64      `gorm:"not null;uniqueIndex:idx_state_tour_user" json:"user_id"`
	LastStartedAt    *time.Time `json:"last_started_at"`
	LastTerminatedAt *time.Time `json:"last_terminated_at"` // nil means "never closed"
	TimesStarted     int        `gorm:"not null;default:0" json:"times_started"`
	TimesCompleted   int        `gorm:"not null;default:0" json:"times_completed"`
	LastStepReached  int        `gorm:"not null;default:0" json:"last_step_reached"`
	ShowAgain        bool       `gorm:"not null;default:false" json:"show_again"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (UserTourState) TableName() string {
	return "user_tour_states"
}

// TourUsageEntry is one append-only record of a single start-to-close run.
// Never updated after TerminatedAt is set except by explicit reset/delete.
type TourUsageEntry struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	TourID          int64      `gorm:"not null;index:idx_usage_tour_user" json:"tour_id"`
	UserID          int64      `gorm:"not null;index:idx_usage_tour_user" json:"user_id"`
	StartedAt       time.Time  `gorm:"not null;index" json:"started_at"`
	TerminatedAt    *time.Time `json:"terminated_at"` // nil while the run is open
	LastStepReached int        `gorm:"not null;default:0" json:"last_step_reached"`
}

// TableName specifies the table name for GORM
func (TourUsageEntry) TableName() string {
	return "tour_usage_entries"
}

// getOpenEntry returns the most recent unterminated history entry for the
// pair, or nil. This is the fallback lookup used when the caller did not
// carry the history id through from SetStarted.
func getOpenEntry(db *gorm.DB, tourID, userID int64) (*TourUsageEntry, error) {
	var entry TourUsageEntry
	err := db.Where("tour_id = ? AND user_id = ? AND terminated_at IS NULL", tourID, userID).
		Order("started_at DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func getState(db *gorm.DB, tourID, userID int64) (*UserTourState, error) {
	var state UserTourState
	err := db.Where("tour_id = ? AND user_id = ?", tourID, userID).First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

// SetStarted records the start of a tour run and returns the id of the
// history entry covering it. If an unterminated entry already exists for
// the pair it is reused: a page reload mid-tour is the same run, so no new
// history row is created and no counter moves.
func SetStarted(db *gorm.DB, logger *slog.Logger, tourID, userID int64) (int64, error) {
	open, err := getOpenEntry(db, tourID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to look up open usage entry: %w", err)
	}
	if open != nil {
		return open.ID, nil
	}

	now := time.Now().UTC()
	var historyID int64

	err = models.PerformWrite(logger, db, func(tx *gorm.DB) error {
		state, err := getState(tx, tourID, userID)
		if err != nil {
			return err
		}
		if state == nil {
			state = &UserTourState{TourID: tourID, UserID: userID, CreatedAt: now}
		}

		state.TimesStarted++
		state.LastStepReached = 0
		state.ShowAgain = false
		state.LastStartedAt = &now
		state.UpdatedAt = now

		if err := tx.Save(state).Error; err != nil {
			return err
		}

		entry := TourUsageEntry{
			TourID:    tourID,
			UserID:    userID,
			StartedAt: now,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		historyID = entry.ID
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to record tour start: %w", err)
	}

	return historyID, nil
}

// SetTerminated closes the current run of a tour for a user and applies the
// tour's trigger-mode show-again policy. currentHistoryID is the id
// returned by SetStarted in the same request chain; pass 0 when unknown and
// the most recent open entry is used instead. If the pair has no state yet
// a minimal state row and a matching already-closed history entry are
// synthesized.
func SetTerminated(db *gorm.DB, logger *slog.Logger, tourID, userID, currentHistoryID int64) error {
	mode := tours.TriggerModeNormal
	if tour, err := tours.GetTourByID(db, tourID); err == nil {
		mode = tour.TriggerMode
	}

	now := time.Now().UTC()

	err := models.PerformWrite(logger, db, func(tx *gorm.DB) error {
		state, err := getState(tx, tourID, userID)
		if err != nil {
			return err
		}

		if state == nil {
			// Terminate without a prior start in any request: synthesize the
			// minimal state and a closed run covering it.
			state = &UserTourState{
				TourID:        tourID,
				UserID:        userID,
				TimesStarted:  1,
				LastStartedAt: &now,
				CreatedAt:     now,
			}
			entry := TourUsageEntry{
				TourID:       tourID,
				UserID:       userID,
				StartedAt:    now,
				TerminatedAt: &now,
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
		} else {
			if err := closeOpenEntry(tx, tourID, userID, currentHistoryID, now); err != nil {
				return err
			}
		}

		state.ShowAgain = showAgainAfterTermination(mode, state.TimesCompleted)
		state.LastTerminatedAt = &now
		state.UpdatedAt = now

		return tx.Save(state).Error
	})
	if err != nil {
		return fmt.Errorf("failed to record tour termination: %w", err)
	}
	return nil
}

// showAgainAfterTermination implements the per-mode replay policy.
func showAgainAfterTermination(mode tours.TriggerMode, timesCompleted int) bool {
	switch mode {
	case tours.TriggerModeAlways:
		return true
	case tours.TriggerModeUntilCompleted:
		return timesCompleted == 0
	default:
		return false
	}
}

// closeOpenEntry terminates the run's history entry, preferring the id
// carried through the request over the most-recent-open fallback.
func closeOpenEntry(tx *gorm.DB, tourID, userID, currentHistoryID int64, now time.Time) error {
	if currentHistoryID > 0 {
		result := tx.Model(&TourUsageEntry{}).
			Where("id = ? AND terminated_at IS NULL", currentHistoryID).
			Update("terminated_at", now)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			return nil
		}
		// The id did not match an open entry, fall through to the query.
	}

	open, err := getOpenEntry(tx, tourID, userID)
	if err != nil || open == nil {
		return err
	}
	return tx.Model(&TourUsageEntry{}).
		Where("id = ?", open.ID).
		Update("terminated_at", now).Error
}

// HasFinished reports whether the user has closed this tour before with
// nothing asking to show it again. This is the sole gate used by autostart
// eligibility.
func HasFinished(db *gorm.DB, tourID, userID int64) (bool, error) {
	state, err := getState(db, tourID, userID)
	if err != nil {
		return false, err
	}
	if state == nil {
		return false, nil
	}
	return state.LastTerminatedAt != nil && !state.ShowAgain, nil
}

// HasCompleted reports whether the user ever reached the end of the tour
func HasCompleted(db *gorm.DB, tourID, userID int64) (bool, error) {
	state, err := getState(db, tourID, userID)
	if err != nil {
		return false, err
	}
	if state == nil {
		return false, nil
	}
	return state.TimesCompleted > 0, nil
}

// UpdateLastStep records the furthest step the user has reached in the
// current run and counts a completion when the last step is hit. It
// tolerates running before SetStarted in the same request by creating the
// state and history rows defensively. Returns the history entry id in use
// and whether this call completed the tour.
func UpdateLastStep(db *gorm.DB, logger *slog.Logger, tourID, userID int64, stepIndex, totalSteps int, currentHistoryID int64) (int64, bool, error) {
	historyID := currentHistoryID
	if historyID == 0 {
		open, err := getOpenEntry(db, tourID, userID)
		if err != nil {
			return 0, false, err
		}
		if open != nil {
			historyID = open.ID
		} else {
			historyID, err = SetStarted(db, logger, tourID, userID)
			if err != nil {
				return 0, false, err
			}
		}
	}

	completed := totalSteps > 0 && stepIndex >= totalSteps-1
	now := time.Now().UTC()

	err := models.PerformWrite(logger, db, func(tx *gorm.DB) error {
		state, err := getState(tx, tourID, userID)
		if err != nil {
			return err
		}
		if state == nil {
			state = &UserTourState{TourID: tourID, UserID: userID, TimesStarted: 1, LastStartedAt: &now, CreatedAt: now}
		}

		state.LastStepReached = stepIndex
		if completed {
			state.TimesCompleted++
		}
		state.UpdatedAt = now

		if err := tx.Save(state).Error; err != nil {
			return err
		}

		return tx.Model(&TourUsageEntry{}).
			Where("id = ?", historyID).
			Update("last_step_reached", stepIndex).Error
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to update last step: %w", err)
	}

	return historyID, completed, nil
}

// ResetTour hard-deletes all state and history rows for a tour. The tour's
// statistics are wiped.
func ResetTour(db *gorm.DB, logger *slog.Logger, tourID int64) error {
	return models.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := tx.Where("tour_id = ?", tourID).Delete(&UserTourState{}).Error; err != nil {
			return err
		}
		return tx.Where("tour_id = ?", tourID).Delete(&TourUsageEntry{}).Error
	})
}

// ResetCompletionStatus flags the tour to be shown again to every user
// without touching counters or history. Used after a tour's content
// changed, so users see the new version while analytics stay intact.
func ResetCompletionStatus(db *gorm.DB, logger *slog.Logger, tourID int64) error {
	return models.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(&UserTourState{}).
			Where("tour_id = ?", tourID).
			Updates(map[string]interface{}{"show_again": true, "updated_at": time.Now().UTC()}).Error
	})
}

// ResetForUser hard-deletes state and history for one (tour,user) pair
func ResetForUser(db *gorm.DB, logger *slog.Logger, tourID, userID int64) error {
	return models.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := tx.Where("tour_id = ? AND user_id = ?", tourID, userID).Delete(&UserTourState{}).Error; err != nil {
			return err
		}
		return tx.Where("tour_id = ? AND user_id = ?", tourID, userID).Delete(&TourUsageEntry{}).Error
	})
}

// UsageStats is the per-user summary exposed to admins
type UsageStats struct {
	LastStartedAt    *time.Time `json:"last_started_at"`
	LastTerminatedAt *time.Time `json:"last_terminated_at"`
	LastStepReached  int        `json:"last_step_reached"`
	TimesStarted     int        `json:"times_started"`
	TimesCompleted   int        `json:"times_completed"`
}

// GetUsageStats returns the per-user usage summary, or nil when the user
// never interacted with the tour
func GetUsageStats(db *gorm.DB, tourID, userID int64) (*UsageStats, error) {
	state, err := getState(db, tourID, userID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, nil
	}
	return &UsageStats{
		LastStartedAt:    state.LastStartedAt,
		LastTerminatedAt: state.LastTerminatedAt,
		LastStepReached:  state.LastStepReached,
		TimesStarted:     state.TimesStarted,
		TimesCompleted:   state.TimesCompleted,
	}, nil
}
