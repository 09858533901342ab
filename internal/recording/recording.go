// Package recording manages interactive tour-recording sessions. A session
// is keyed by an opaque token handed to the recording client; captured
// element snapshots are classified and accumulated as step drafts until
// the session is discarded or committed to the tour's step list.
package recording

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tourly/internal/capture"
	"tourly/internal/models"
	"tourly/internal/steps"
)

// SessionNotFoundError represents an error when a recording session is not found
type SessionNotFoundError struct {
	Token string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("recording session not found: %s", e.Token)
}

// StepDraftList is the ordered list of captured step drafts, stored as a
// JSON column.
type StepDraftList []steps.Step

// Scan implements the sql.Scanner interface
func (l *StepDraftList) Scan(value interface{}) error {
	if value == nil {
		*l = StepDraftList{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan step drafts from %T", value)
	}

	if len(raw) == 0 {
		*l = StepDraftList{}
		return nil
	}

	var list []steps.Step
	if err := json.Unmarshal(raw, &list); err != nil {
		return fmt.Errorf("invalid step draft list: %w", err)
	}
	*l = StepDraftList(list)
	return nil
}

// Value implements the driver.Valuer interface
func (l StepDraftList) Value() (driver.Value, error) {
	if l == nil {
		l = StepDraftList{}
	}
	data, err := json.Marshal([]steps.Step(l))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// RecordingSession is the server-side state of one recording run. The
// arming fields implement the short post-capture window during which a
// click on the just-captured element binds implicit advance-on-click; the
// fingerprint and LastCaptureAt fields implement the capture debounce.
type RecordingSession struct {
	ID              int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Token           string        `gorm:"not null;size:64;uniqueIndex" json:"token"`
	TourID          int64         `gorm:"not null;index" json:"tour_id"`
	Active          bool          `gorm:"not null;default:true" json:"active"`
	Paused          bool          `gorm:"not null;default:false" json:"paused"`
	Drafts          StepDraftList `gorm:"type:text" json:"drafts"`
	LastCaptureAt   *time.Time    `json:"last_capture_at"`
	LastFingerprint string        `gorm:"size:500" json:"-"`
	ArmedStepIndex  int           `gorm:"not null;default:0" json:"armed_step_index"` // 1-based, 0 = disarmed
	ArmedUntil      *time.Time    `json:"armed_until"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (RecordingSession) TableName() string {
	return "recording_sessions"
}

// GetByToken retrieves a recording session by its token
func GetByToken(db *gorm.DB, token string) (*RecordingSession, error) {
	var session RecordingSession
	if err := db.Where("token = ?", token).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &SessionNotFoundError{Token: token}
		}
		return nil, fmt.Errorf("unexpected error querying recording session: %w", err)
	}
	return &session, nil
}

// Start opens a new recording session for a tour. Any previous session for
// the same tour is dropped: recording is single-session per tour, last
// writer wins.
func Start(db *gorm.DB, logger *slog.Logger, tourID int64) (*RecordingSession, error) {
	session := &RecordingSession{
		Token:  uuid.NewString(),
		TourID: tourID,
		Active: true,
		Drafts: StepDraftList{},
	}

	err := models.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := tx.Where("tour_id = ?", tourID).Delete(&RecordingSession{}).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		session.CreatedAt = now
		session.UpdatedAt = now
		return tx.Create(session).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start recording session: %w", err)
	}

	logger.Info("recording session started", "tour_id", tourID, "token", session.Token)
	return session, nil
}

// Capture classifies a snapshot and appends it to the session as a step
// draft. Returns the draft, or nil when the capture was a no-op: paused
// session, missing target, debounce window still open, or the same element
// captured twice in immediate succession.
func Capture(db *gorm.DB, logger *slog.Logger, token string, snapshot *capture.ElementSnapshot, debounce, armingWindow time.Duration) (*steps.Step, error) {
	if snapshot == nil {
		return nil, nil
	}

	session, err := GetByToken(db, token)
	if err != nil {
		return nil, err
	}
	if !session.Active || session.Paused {
		return nil, nil
	}

	now := time.Now().UTC()
	fingerprint := snapshot.Fingerprint()

	if session.LastCaptureAt != nil {
		elapsed := now.Sub(*session.LastCaptureAt)
		if elapsed < debounce {
			return nil, nil
		}
		// Same element twice back to back is a repeat trigger, not a new
		// step.
		if fingerprint == session.LastFingerprint && elapsed < 2*debounce {
			return nil, nil
		}
	}

	draft := capture.BuildDraft(snapshot, len(session.Drafts)+1)

	session.Drafts = append(session.Drafts, draft)
	session.LastCaptureAt = &now
	session.LastFingerprint = fingerprint
	session.ArmedStepIndex = len(session.Drafts)
	armedUntil := now.Add(armingWindow)
	session.ArmedUntil = &armedUntil
	session.UpdatedAt = now

	if err := saveSession(db, logger, session); err != nil {
		return nil, err
	}
	return &draft, nil
}

// ClickObserved reports that the user clicked the just-captured element.
// Inside the arming window this binds implicit advance-on-click to the
// armed step; outside it the click is ignored. Reports whether the click
// was consumed, so the client knows to suppress its default effect.
func ClickObserved(db *gorm.DB, logger *slog.Logger, token string) (bool, error) {
	session, err := GetByToken(db, token)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	if session.ArmedStepIndex <= 0 || session.ArmedUntil == nil || now.After(*session.ArmedUntil) {
		return false, nil
	}
	index := session.ArmedStepIndex - 1
	if index >= len(session.Drafts) {
		return false, nil
	}

	// Advance-on-click: the step completes when its own element is clicked.
	session.Drafts[index].OnNext = session.Drafts[index].Element
	session.ArmedStepIndex = 0
	session.ArmedUntil = nil
	session.UpdatedAt = now

	if err := saveSession(db, logger, session); err != nil {
		return false, err
	}
	return true, nil
}

// NavigationObserved records a location change in the recording preview.
// The most recently captured step caused the navigation, so its Path is
// set to the new location and replay will browse there first. A change
// before any capture is ignored.
func NavigationObserved(db *gorm.DB, logger *slog.Logger, token, path string) error {
	session, err := GetByToken(db, token)
	if err != nil {
		return err
	}
	if len(session.Drafts) == 0 {
		return nil
	}

	session.Drafts[len(session.Drafts)-1].Path = path
	session.UpdatedAt = time.Now().UTC()
	return saveSession(db, logger, session)
}

// Pause suspends capturing; drafts are retained
func Pause(db *gorm.DB, logger *slog.Logger, token string) error {
	return setPaused(db, logger, token, true)
}

// Resume re-enables capturing on a paused session
func Resume(db *gorm.DB, logger *slog.Logger, token string) error {
	return setPaused(db, logger, token, false)
}

func setPaused(db *gorm.DB, logger *slog.Logger, token string, paused bool) error {
	session, err := GetByToken(db, token)
	if err != nil {
		return err
	}

	session.Paused = paused
	session.ArmedStepIndex = 0
	session.ArmedUntil = nil
	session.UpdatedAt = time.Now().UTC()
	return saveSession(db, logger, session)
}

// Discard drops the session and all captured drafts without persisting
func Discard(db *gorm.DB, logger *slog.Logger, token string) error {
	session, err := GetByToken(db, token)
	if err != nil {
		return err
	}

	return models.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Delete(&RecordingSession{}, session.ID).Error
	})
}

// Commit replaces the tour's step list with the session's drafts in one
// transaction and drops the session. Committing an empty session is an
// error so a stray commit cannot wipe a tour's steps.
func Commit(db *gorm.DB, logger *slog.Logger, token string) error {
	session, err := GetByToken(db, token)
	if err != nil {
		return err
	}
	if len(session.Drafts) == 0 {
		return fmt.Errorf("recording session has no captured steps")
	}

	if err := steps.ReplaceSteps(db, logger, session.TourID, []steps.Step(session.Drafts)); err != nil {
		return fmt.Errorf("failed to persist recorded steps: %w", err)
	}

	err = models.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Delete(&RecordingSession{}, session.ID).Error
	})
	if err != nil {
		return err
	}

	logger.Info("recording session committed", "tour_id", session.TourID, "steps", len(session.Drafts))
	return nil
}

// ReplaceDrafts overwrites the session's draft list. The recording client
// may edit titles and contents locally and submit the reworked drafts at
// save time.
func ReplaceDrafts(db *gorm.DB, logger *slog.Logger, token string, drafts []steps.Step) error {
	session, err := GetByToken(db, token)
	if err != nil {
		return err
	}

	session.Drafts = StepDraftList(drafts)
	session.UpdatedAt = time.Now().UTC()
	return saveSession(db, logger, session)
}

// BindMode selects what an edit-mode capture does to the edited step.
type BindMode string

const (
	BindNext  BindMode = "next"
	BindPrev  BindMode = "prev"
	BindClear BindMode = "clear"
)

// Bind applies an edit-mode capture to an already-recorded step: the
// hovered element's resolved locator becomes the step's onNext or onPrev
// action, or both bindings are cleared. stepIndex is 1-based. The snapshot
// runs through the same classifier as primary capture.
func Bind(db *gorm.DB, logger *slog.Logger, token string, stepIndex int, mode BindMode, snapshot *capture.ElementSnapshot) error {
	session, err := GetByToken(db, token)
	if err != nil {
		return err
	}
	if stepIndex < 1 || stepIndex > len(session.Drafts) {
		return fmt.Errorf("step index %d out of range", stepIndex)
	}

	draft := &session.Drafts[stepIndex-1]

	switch mode {
	case BindClear:
		draft.OnNext = ""
		draft.OnPrev = ""
	case BindNext, BindPrev:
		if snapshot == nil {
			return nil
		}
		locator := capture.Classify(snapshot).Locator
		if mode == BindNext {
			draft.OnNext = locator
		} else {
			draft.OnPrev = locator
		}
	default:
		return fmt.Errorf("unknown bind mode: %s", mode)
	}

	session.UpdatedAt = time.Now().UTC()
	return saveSession(db, logger, session)
}

// CleanupStale deletes sessions idle beyond the TTL and returns how many
// were removed. Run by the background cleanup job.
func CleanupStale(db *gorm.DB, logger *slog.Logger, ttl time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-ttl)

	var removed int64
	err := models.PerformWrite(logger, db, func(tx *gorm.DB) error {
		result := tx.Where("updated_at < ?", cutoff).Delete(&RecordingSession{})
		removed = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to clean up recording sessions: %w", err)
	}
	return removed, nil
}

func saveSession(db *gorm.DB, logger *slog.Logger, session *RecordingSession) error {
	return models.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Save(session).Error
	})
}
