package http

import (
	"strings"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/flash"
	"github.com/karloscodes/cartridge/inertia"
	"github.com/pariz/gountries"
	"golang.org/x/text/language"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"tourly/internal/tours"
	"tourly/internal/usage"
)

var countryQuery = gountries.New()

// languageDisplay renders a tour's language code for the admin UI. A
// regioned tag like "de-AT" resolves to the country name, a bare code is
// shown uppercased, and an empty code means the tour is not restricted.
func languageDisplay(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return "All languages"
	}

	tag, err := language.Parse(code)
	if err != nil {
		return strings.ToUpper(code)
	}

	if region, confidence := tag.Region(); confidence != language.No && region.IsCountry() {
		if country, err := countryQuery.FindCountryByAlpha(region.String()); err == nil {
			return country.Name.Common
		}
	}

	base, _ := tag.Base()
	return strings.ToUpper(base.String())
}

// tourStatisticsRow is one line of the statistics overview
type tourStatisticsRow struct {
	Tour       tours.Tour            `json:"tour"`
	Language   string                `json:"language"`
	Statistics *usage.TourStatistics `json:"statistics"`
}

// StatisticsIndexAction shows usage statistics for every tour (Inertia)
func StatisticsIndexAction(ctx *cartridge.Context) error {
	db := ctx.DB()

	allTours, err := tours.GetAllTours(db)
	if err != nil {
		ctx.Logger.Error("Failed to load tours for statistics", slog.Any("error", err))
		flash.SetFlash(ctx.Ctx, "error", "Failed to load statistics")
		return ctx.Redirect("/admin/tours", fiber.StatusFound)
	}

	statsByTour, err := usage.GetAllToursStatistics(ctx.Ctx.UserContext(), db)
	if err != nil {
		ctx.Logger.Error("Failed to compute tour statistics", slog.Any("error", err))
		statsByTour = map[int64]*usage.TourStatistics{}
	}

	rows := make([]tourStatisticsRow, len(allTours))
	for i, tour := range allTours {
		rows[i] = tourStatisticsRow{
			Tour:       tour,
			Language:   languageDisplay(tour.LanguageCode),
			Statistics: statsByTour[tour.ID],
		}
	}

	return inertia.RenderPage(ctx.Ctx, "Statistics", inertia.Props{
		"title": "Statistics",
		"rows":  rows,
	})
}

// TourStatisticsPageAction shows the detailed statistics of one tour (Inertia)
func TourStatisticsPageAction(ctx *cartridge.Context) error {
	id, err := ctx.ParamsInt("id")
	if err != nil {
		ctx.Logger.Error("Invalid tour ID", slog.Any("error", err))
		flash.SetFlash(ctx.Ctx, "error", "Invalid tour ID")
		return ctx.Redirect("/admin/statistics", fiber.StatusFound)
	}

	db := ctx.DB()

	tour, err := tours.GetTourByID(db, int64(id))
	if err != nil {
		flash.SetFlash(ctx.Ctx, "error", "Tour not found")
		return ctx.Redirect("/admin/statistics", fiber.StatusFound)
	}

	stats, err := usage.GetTourStatistics(db, tour.ID)
	if err != nil {
		ctx.Logger.Error("Failed to compute tour statistics", slog.Any("error", err), slog.Int64("tour_id", tour.ID))
		flash.SetFlash(ctx.Ctx, "error", "Failed to load statistics")
		return ctx.Redirect("/admin/statistics", fiber.StatusFound)
	}

	return inertia.RenderPage(ctx.Ctx, "TourStatistics", inertia.Props{
		"title":      "Tour Statistics",
		"tour":       tour,
		"language":   languageDisplay(tour.LanguageCode),
		"statistics": stats,
	})
}
