package steps

import (
	"errors"
	"fmt"
	"time"

	"log/slog"

	"gorm.io/gorm"

	"tourly/internal/models"
)

// ElementType classifies how a step's element locator is resolved by the
// player.
type ElementType string

const (
	ElementMainbar               ElementType = "mainbar"
	ElementMetabar               ElementType = "metabar"
	ElementTab                   ElementType = "tab"
	ElementForm                  ElementType = "form"
	ElementTable                 ElementType = "table"
	ElementToolbar               ElementType = "toolbar"
	ElementToolbarButton         ElementType = "toolbar_button"
	ElementToolbarDropdownButton ElementType = "toolbar_dropdown_button"
	ElementToolbarDropdownItem   ElementType = "toolbar_dropdown_item"
	ElementButton                ElementType = "button"
	ElementCSSSelector           ElementType = "css_selector"
)

// Placement positions the step popover relative to its element.
type Placement string

const (
	PlacementTop    Placement = "top"
	PlacementBottom Placement = "bottom"
	PlacementLeft   Placement = "left"
	PlacementRight  Placement = "right"
	PlacementCenter Placement = "center"
)

// DefaultPlacement is used whenever an unknown placement value is supplied.
const DefaultPlacement = PlacementRight

// CoercePlacement maps any value outside the fixed enum to the default
// instead of failing.
func CoercePlacement(value string) Placement {
	switch Placement(value) {
	case PlacementTop, PlacementBottom, PlacementLeft, PlacementRight, PlacementCenter:
		return Placement(value)
	}
	return DefaultPlacement
}

// StepNotFoundError represents an error when a step is not found
type StepNotFoundError struct {
	ID int64
}

func (e *StepNotFoundError) Error() string {
	return fmt.Sprintf("step not found: %d", e.ID)
}

// Step is one highlighted-element plus text unit within a tour, played in
// SortOrder. SortOrder values are unique per tour and contiguous from 1.
type Step struct {
	ID            int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	TourID        int64       `gorm:"not null;index:idx_steps_tour_sort" json:"tour_id"`
	SortOrder     int         `gorm:"not null;index:idx_steps_tour_sort" json:"sort_order"`
	Element       string      `gorm:"size:1000" json:"element"`
	ElementType   ElementType `gorm:"size:50" json:"element_type"`
	ElementName   string      `gorm:"size:255" json:"element_name"` // reserved
	Title         string      `gorm:"size:255" json:"title"`
	Content       string      `gorm:"type:text" json:"content"`
	ContentPageID *int64      `json:"content_page_id"`
	Placement     Placement   `gorm:"size:20;default:'right'" json:"placement"`
	Orphan        bool        `gorm:"not null;default:false" json:"orphan"`
	OnNext        string      `gorm:"type:text" json:"on_next"`
	OnPrev        string      `gorm:"type:text" json:"on_prev"`
	OnShow        string      `gorm:"type:text" json:"on_show"`
	OnShown       string      `gorm:"type:text" json:"on_shown"`
	OnHide        string      `gorm:"type:text" json:"on_hide"`
	Path          string      `gorm:"size:1000" json:"path"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Step) TableName() string {
	return "steps"
}

// GetStepsByTourID retrieves all steps of a tour ordered by SortOrder
func GetStepsByTourID(db *gorm.DB, tourID int64) ([]Step, error) {
	var list []Step
	if err := db.Where("tour_id = ?", tourID).
		Order("sort_order ASC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to get steps for tour %d: %w", tourID, err)
	}
	return list, nil
}

// GetStepByID retrieves a single step
func GetStepByID(db *gorm.DB, id int64) (*Step, error) {
	var step Step
	if err := db.First(&step, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &StepNotFoundError{ID: id}
		}
		return nil, fmt.Errorf("unexpected error querying step: %w", err)
	}
	return &step, nil
}

// GetNextSortOrder returns the sort order the next appended step should get
func GetNextSortOrder(db *gorm.DB, tourID int64) (int, error) {
	var max *int
	if err := db.Model(&Step{}).
		Where("tour_id = ?", tourID).
		Select("MAX(sort_order)").
		Scan(&max).Error; err != nil {
		return 0, fmt.Errorf("failed to get next sort order: %w", err)
	}
	if max == nil {
		return 1, nil
	}
	return *max + 1, nil
}

// CreateStep creates a new step. A zero SortOrder appends at the end.
func CreateStep(db *gorm.DB, logger *slog.Logger, step *Step) error {
	if step.TourID == 0 {
		return fmt.Errorf("step tour ID is required")
	}

	step.Placement = CoercePlacement(string(step.Placement))

	return models.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if step.SortOrder <= 0 {
			next, err := GetNextSortOrder(tx, step.TourID)
			if err != nil {
				return err
			}
			step.SortOrder = next
		}

		now := time.Now().UTC()
		step.CreatedAt = now
		step.UpdatedAt = now

		return tx.Create(step).Error
	})
}

// UpdateStep updates an existing step's editable fields
func UpdateStep(db *gorm.DB, logger *slog.Logger, step *Step) error {
	if step.ID == 0 {
		return fmt.Errorf("step ID is required")
	}

	step.Placement = CoercePlacement(string(step.Placement))
	step.UpdatedAt = time.Now().UTC()

	return models.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(step).
			Select("element", "element_type", "element_name", "title", "content",
				"content_page_id", "placement", "orphan", "on_next", "on_prev",
				"on_show", "on_shown", "on_hide", "path", "updated_at").
			Updates(step).Error
	})
}

// DeleteStep removes a step and closes the sort-order gap it leaves
func DeleteStep(db *gorm.DB, logger *slog.Logger, id int64) error {
	return models.PerformWrite(logger, db, func(tx *gorm.DB) error {
		var step Step
		if err := tx.First(&step, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &StepNotFoundError{ID: id}
			}
			return err
		}

		if err := tx.Delete(&Step{}, id).Error; err != nil {
			return err
		}

		return resequence(tx, step.TourID)
	})
}

// MoveStep moves a step to a new 1-based position within its tour,
// shifting the steps in between and keeping the sequence contiguous.
func MoveStep(db *gorm.DB, logger *slog.Logger, id int64, newPosition int) error {
	return models.PerformWrite(logger, db, func(tx *gorm.DB) error {
		var step Step
		if err := tx.First(&step, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &StepNotFoundError{ID: id}
			}
			return err
		}

		var count int64
		if err := tx.Model(&Step{}).Where("tour_id = ?", step.TourID).Count(&count).Error; err != nil {
			return err
		}
		if newPosition < 1 {
			newPosition = 1
		}
		if newPosition > int(count) {
			newPosition = int(count)
		}
		if newPosition == step.SortOrder {
			return nil
		}

		if newPosition < step.SortOrder {
			// Shift the affected range down the list
			if err := tx.Model(&Step{}).
				Where("tour_id = ? AND sort_order >= ? AND sort_order < ?", step.TourID, newPosition, step.SortOrder).
				UpdateColumn("sort_order", gorm.Expr("sort_order + 1")).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Model(&Step{}).
				Where("tour_id = ? AND sort_order > ? AND sort_order <= ?", step.TourID, step.SortOrder, newPosition).
				UpdateColumn("sort_order", gorm.Expr("sort_order - 1")).Error; err != nil {
				return err
			}
		}

		return tx.Model(&Step{}).Where("id = ?", id).
			UpdateColumn("sort_order", newPosition).Error
	})
}

// ReplaceSteps replaces the whole step list of a tour in one transaction.
// Used when a recording session is committed.
func ReplaceSteps(db *gorm.DB, logger *slog.Logger, tourID int64, replacement []Step) error {
	return models.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := tx.Where("tour_id = ?", tourID).Delete(&Step{}).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		for i := range replacement {
			replacement[i].ID = 0
			replacement[i].TourID = tourID
			replacement[i].SortOrder = i + 1
			replacement[i].Placement = CoercePlacement(string(replacement[i].Placement))
			replacement[i].CreatedAt = now
			replacement[i].UpdatedAt = now
			if err := tx.Create(&replacement[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// resequence rewrites sort orders to be contiguous from 1 preserving the
// current relative order
func resequence(tx *gorm.DB, tourID int64) error {
	var list []Step
	if err := tx.Where("tour_id = ?", tourID).
		Order("sort_order ASC").
		Find(&list).Error; err != nil {
		return err
	}

	for i, step := range list {
		want := i + 1
		if step.SortOrder == want {
			continue
		}
		if err := tx.Model(&Step{}).Where("id = ?", step.ID).
			UpdateColumn("sort_order", want).Error; err != nil {
			return err
		}
	}
	return nil
}
