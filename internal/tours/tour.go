package tours

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// ObjectTypeAny is the wildcard object type: the tour matches every page
// context (language and role gates still apply).
const ObjectTypeAny = "any"

// TriggerMode governs the show-again policy applied when a tour run is
// terminated.
type TriggerMode string

const (
	// TriggerModeNormal closes the tour for good once terminated.
	TriggerModeNormal TriggerMode = "normal"
	// TriggerModeAlways re-offers the tour after every termination.
	TriggerModeAlways TriggerMode = "always"
	// TriggerModeUntilCompleted re-offers the tour until the user has
	// completed it at least once.
	TriggerModeUntilCompleted TriggerMode = "until_completed"
)

// ValidTriggerModes returns all valid trigger modes
func ValidTriggerModes() []TriggerMode {
	return []TriggerMode{
		TriggerModeNormal,
		TriggerModeAlways,
		TriggerModeUntilCompleted,
	}
}

// IsValidTriggerMode checks if the given mode is valid
func IsValidTriggerMode(m TriggerMode) bool {
	for _, valid := range ValidTriggerModes() {
		if m == valid {
			return true
		}
	}
	return false
}

// TourNotFoundError represents an error when a tour is not found
type TourNotFoundError struct {
	ID int64
}

func (e *TourNotFoundError) Error() string {
	return fmt.Sprintf("tour not found: %d", e.ID)
}

// NewTourNotFoundError creates a new TourNotFoundError
func NewTourNotFoundError(id int64) *TourNotFoundError {
	return &TourNotFoundError{ID: id}
}

// RoleIDList is a set of role identifiers stored as a JSON array column.
// An empty list means the tour is visible to nobody.
type RoleIDList []int64

// Scan implements the sql.Scanner interface. Blank or NULL input
// deserializes to an empty list, never nil.
func (r *RoleIDList) Scan(value interface{}) error {
	if value == nil {
		*r = RoleIDList{}
		return nil
	}

	var raw string
	switch v := value.(type) {
	case []byte:
		raw = string(v)
	case string:
		raw = v
	default:
		return fmt.Errorf("cannot scan role list from %T", value)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		*r = RoleIDList{}
		return nil
	}

	var ids []int64
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return fmt.Errorf("invalid role list %q: %w", raw, err)
	}
	if ids == nil {
		ids = []int64{}
	}
	*r = RoleIDList(ids)
	return nil
}

// Value implements the driver.Valuer interface
func (r RoleIDList) Value() (driver.Value, error) {
	if r == nil {
		r = RoleIDList{}
	}
	data, err := json.Marshal([]int64(r))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Contains reports whether the list contains the given role id
func (r RoleIDList) Contains(id int64) bool {
	for _, candidate := range r {
		if candidate == id {
			return true
		}
	}
	return false
}

// IntersectsAny reports whether the list shares at least one role id with
// the given user role set. An empty list never intersects.
func (r RoleIDList) IntersectsAny(userRoles []int64) bool {
	for _, role := range userRoles {
		if r.Contains(role) {
			return true
		}
	}
	return false
}

// Tour represents an authored walkthrough targeting a page context, a role
// set and optionally a language.
type Tour struct {
	ID            int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	Title         string      `gorm:"not null;size:255" json:"title"`
	ObjectType    string      `gorm:"not null;default:'any';index" json:"object_type"`
	RawScript     string      `gorm:"type:text" json:"raw_script"`
	Active        bool        `gorm:"not null;default:false" json:"active"`
	AutoTriggered bool        `gorm:"not null;default:false" json:"auto_triggered"`
	TriggerMode   TriggerMode `gorm:"size:50;default:'normal'" json:"trigger_mode"`
	RoleIDs       RoleIDList  `gorm:"type:text" json:"role_ids"`
	IconID        string      `gorm:"size:255" json:"icon_id"`
	LanguageCode  string      `gorm:"size:10" json:"language_code"`
	RefID         *int64      `gorm:"index" json:"ref_id"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Tour) TableName() string {
	return "tours"
}

// MatchesLanguage reports whether the tour is visible for the given user
// language. An empty tour language matches everything; the actual tag
// matching lives in the eligibility package.
func (t *Tour) MatchesLanguage(userLanguage string) bool {
	if t.LanguageCode == "" {
		return true
	}
	return strings.EqualFold(t.LanguageCode, userLanguage)
}

// GetActiveTours retrieves all active tours in stable ID order. Autostart
// selection is first-match, so the ordering here is load-bearing.
func GetActiveTours(db *gorm.DB) ([]Tour, error) {
	var list []Tour
	if err := db.Where("active = ?", true).Order("id ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to get active tours: %w", err)
	}
	return list, nil
}

// GetAllTours retrieves every tour in stable ID order
func GetAllTours(db *gorm.DB) ([]Tour, error) {
	var list []Tour
	if err := db.Order("id ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to get tours: %w", err)
	}
	return list, nil
}

// GetTourByID retrieves a tour by its ID
func GetTourByID(db *gorm.DB, id int64) (*Tour, error) {
	var tour Tour
	if err := db.First(&tour, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewTourNotFoundError(id)
		}
		return nil, fmt.Errorf("unexpected error querying tour: %w", err)
	}
	return &tour, nil
}

// CreateTour creates a new tour
func CreateTour(db *gorm.DB, tour *Tour) error {
	if tour.Title == "" {
		return fmt.Errorf("tour title is required")
	}

	// Set defaults
	if tour.ObjectType == "" {
		tour.ObjectType = ObjectTypeAny
	}
	if tour.TriggerMode == "" {
		tour.TriggerMode = TriggerModeNormal
	}
	if !IsValidTriggerMode(tour.TriggerMode) {
		return fmt.Errorf("invalid trigger mode: %s", tour.TriggerMode)
	}
	if tour.RoleIDs == nil {
		tour.RoleIDs = RoleIDList{}
	}

	now := time.Now().UTC()
	tour.CreatedAt = now
	tour.UpdatedAt = now

	return db.Create(tour).Error
}

// UpdateTour updates an existing tour
func UpdateTour(db *gorm.DB, tour *Tour) error {
	if tour.ID == 0 {
		return fmt.Errorf("tour ID is required")
	}
	if tour.Title == "" {
		return fmt.Errorf("tour title is required")
	}
	if tour.TriggerMode != "" && !IsValidTriggerMode(tour.TriggerMode) {
		return fmt.Errorf("invalid trigger mode: %s", tour.TriggerMode)
	}

	tour.UpdatedAt = time.Now().UTC()

	return db.Model(tour).
		Select("title", "object_type", "raw_script", "active", "auto_triggered",
			"trigger_mode", "role_ids", "icon_id", "language_code", "ref_id", "updated_at").
		Updates(tour).Error
}

// SetTourActive toggles the active flag of a tour
func SetTourActive(db *gorm.DB, id int64, active bool) error {
	result := db.Model(&Tour{}).Where("id = ?", id).
		Updates(map[string]interface{}{"active": active, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return NewTourNotFoundError(id)
	}
	return nil
}

// DeleteTour deletes a tour together with its steps, per-user state and
// usage history in a single transaction.
func DeleteTour(db *gorm.DB, id int64) error {
	return db.Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&Tour{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return NewTourNotFoundError(id)
		}

		// Cascade by table to avoid import cycles with the owning packages.
		for _, table := range []string{"steps", "user_tour_states", "tour_usage_entries", "recording_sessions"} {
			if err := tx.Exec("DELETE FROM "+table+" WHERE tour_id = ?", id).Error; err != nil {
				return fmt.Errorf("failed to cascade delete from %s: %w", table, err)
			}
		}
		return nil
	})
}

// TourWithUsage represents a tour enriched with usage counters for the
// admin list.
type TourWithUsage struct {
	Tour
	TotalStarts int64 `json:"total_starts"`
	UniqueUsers int64 `json:"unique_users"`
}

// GetToursWithUsage retrieves all tours enriched with usage history counts
func GetToursWithUsage(db *gorm.DB) ([]TourWithUsage, error) {
	allTours, err := GetAllTours(db)
	if err != nil {
		return nil, err
	}

	result := make([]TourWithUsage, len(allTours))
	for i, tour := range allTours {
		var starts int64
		if err := db.Table("tour_usage_entries").
			Where("tour_id = ?", tour.ID).
			Count(&starts).Error; err != nil {
			starts = 0
		}

		var unique int64
		if err := db.Table("tour_usage_entries").
			Where("tour_id = ?", tour.ID).
			Distinct("user_id").
			Count(&unique).Error; err != nil {
			unique = 0
		}

		result[i] = TourWithUsage{Tour: tour, TotalStarts: starts, UniqueUsers: unique}
	}
	return result, nil
}
