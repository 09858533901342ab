// Package seeder populates a development database with demo tours and
// synthetic usage history so the admin pages have something to show.
package seeder

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"tourly/internal/settings"
	"tourly/internal/steps"
	"tourly/internal/tours"
	"tourly/internal/usage"
	"tourly/internal/users"
)

// Seeder handles the data seeding process
type Seeder struct {
	DBManager cartridge.DBManager
	Logger    *slog.Logger
	UserCount int
}

// NewSeeder creates a new seeder instance
func NewSeeder(dbManager cartridge.DBManager, logger *slog.Logger, userCount int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	if userCount < 1 {
		userCount = 1
	}
	return &Seeder{
		DBManager: dbManager,
		Logger:    logger,
		UserCount: userCount,
	}
}

// demoTour is one seed catalog entry
type demoTour struct {
	tour  tours.Tour
	steps []steps.Step
}

func demoCatalog() []demoTour {
	refID := int64(42)
	return []demoTour{
		{
			tour: tours.Tour{
				Title:         "Welcome Tour",
				ObjectType:    "any",
				Active:        true,
				AutoTriggered: true,
				TriggerMode:   tours.TriggerModeNormal,
				RoleIDs:       tours.RoleIDList{1, 2, 3},
			},
			steps: []steps.Step{
				{Title: "Welcome", Content: "This is your dashboard.", Orphan: true, Placement: steps.PlacementCenter},
				{Title: "Navigation", Content: "All main areas live here.", Element: "#mainbar", ElementType: steps.ElementMainbar},
				{Title: "Your profile", Content: "Settings and preferences.", Element: "#metabar-profile", ElementType: steps.ElementMetabar},
			},
		},
		{
			tour: tours.Tour{
				Title:         "Course Editor Basics",
				ObjectType:    "course",
				Active:        true,
				AutoTriggered: true,
				TriggerMode:   tours.TriggerModeUntilCompleted,
				RoleIDs:       tours.RoleIDList{2},
			},
			steps: []steps.Step{
				{Title: "Course contents", Content: "Chapters and materials.", Element: "#content", ElementType: steps.ElementCSSSelector},
				{Title: "Add material", Content: "Create a new entry here.", Element: "button.primary", ElementType: steps.ElementButton},
				{Title: "Participants", Content: "Manage who is enrolled.", Element: "#tab-participants", ElementType: steps.ElementTab},
				{Title: "Settings", Content: "Fine-tune the course.", Element: "#toolbar-settings", ElementType: steps.ElementToolbarButton},
			},
		},
		{
			tour: tours.Tour{
				Title:         "Neuigkeiten im Forum",
				ObjectType:    "forum",
				Active:        true,
				AutoTriggered: true,
				TriggerMode:   tours.TriggerModeAlways,
				RoleIDs:       tours.RoleIDList{1, 2, 3},
				LanguageCode:  "de",
			},
			steps: []steps.Step{
				{Title: "Forum", Content: "Hier finden Sie alle Diskussionen.", Element: "#content", ElementType: steps.ElementCSSSelector},
				{Title: "Neuer Beitrag", Content: "Starten Sie eine Diskussion.", Element: "button.primary", ElementType: steps.ElementButton},
			},
		},
		{
			tour: tours.Tour{
				Title:         "Pinned Resource Walkthrough",
				ObjectType:    "resource",
				Active:        false,
				AutoTriggered: true,
				TriggerMode:   tours.TriggerModeNormal,
				RoleIDs:       tours.RoleIDList{3},
				RefID:         &refID,
			},
			steps: []steps.Step{
				{Title: "This resource", Content: "A closer look at one item.", Element: "#content", ElementType: steps.ElementCSSSelector},
			},
		},
	}
}

// Run seeds the database: default settings, a demo admin account, the demo
// tour catalog and synthetic usage history for UserCount users.
func (s *Seeder) Run(ctx context.Context) error {
	start := time.Now()
	db := s.DBManager.GetConnection()

	s.Logger.Info("Seeding database...", slog.Int("userCount", s.UserCount))

	if err := settings.SetupDefaultSettings(db); err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}

	if err := users.CreateAdminUser(db, "admin@example.com", "changeme123"); err != nil && !errors.Is(err, users.ErrUserExists) {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	seeded, err := s.seedTours(db)
	if err != nil {
		return err
	}

	if err := s.seedUsage(ctx, db, seeded); err != nil {
		return err
	}

	s.Logger.Info("Seeding completed", slog.Duration("elapsed", time.Since(start)))
	return nil
}

// seedTours creates the demo catalog, skipping tours whose title already
// exists so reseeding stays idempotent.
func (s *Seeder) seedTours(db *gorm.DB) ([]tours.Tour, error) {
	var seeded []tours.Tour

	for _, demo := range demoCatalog() {
		var existing tours.Tour
		err := db.Where("title = ?", demo.tour.Title).First(&existing).Error
		if err == nil {
			seeded = append(seeded, existing)
			continue
		}

		tour := demo.tour
		if err := tours.CreateTour(db, &tour); err != nil {
			return nil, fmt.Errorf("failed to create tour %q: %w", tour.Title, err)
		}

		for i := range demo.steps {
			step := demo.steps[i]
			step.TourID = tour.ID
			if err := steps.CreateStep(db, s.Logger, &step); err != nil {
				return nil, fmt.Errorf("failed to create step for %q: %w", tour.Title, err)
			}
		}

		s.Logger.Info("Seeded tour", slog.Int64("id", tour.ID), slog.String("title", tour.Title), slog.Int("steps", len(demo.steps)))
		seeded = append(seeded, tour)
	}

	return seeded, nil
}

// seedUsage simulates users running the seeded tours: most complete them,
// some bail out partway, a few leave a run open.
func (s *Seeder) seedUsage(ctx context.Context, db *gorm.DB, seeded []tours.Tour) error {
	for userID := int64(1); userID <= int64(s.UserCount); userID++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		for _, tour := range seeded {
			if !tour.Active || rand.IntN(100) < 30 {
				continue
			}

			stepList, err := steps.GetStepsByTourID(db, tour.ID)
			if err != nil {
				return err
			}
			total := len(stepList)
			if total == 0 {
				continue
			}

			historyID, err := usage.SetStarted(db, s.Logger, tour.ID, userID)
			if err != nil {
				return err
			}

			// 60% complete, 30% bail partway, 10% leave the run open
			outcome := rand.IntN(100)
			reached := total - 1
			if outcome >= 60 {
				reached = rand.IntN(total)
			}

			for step := 0; step <= reached; step++ {
				historyID, _, err = usage.UpdateLastStep(db, s.Logger, tour.ID, userID, step, total, historyID)
				if err != nil {
					return err
				}
			}

			if outcome < 90 {
				if err := usage.SetTerminated(db, s.Logger, tour.ID, userID, historyID); err != nil {
					return err
				}
			}
		}
	}

	s.Logger.Info("Seeded synthetic usage", slog.Int("users", s.UserCount))
	return nil
}
