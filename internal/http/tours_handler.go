package http

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/flash"
	"github.com/karloscodes/cartridge/inertia"
	"log/slog"

	"tourly/internal/models"
	"tourly/internal/steps"
	"tourly/internal/tours"
	"tourly/internal/usage"
)

// ToursIndexAction lists all tours with their usage counters (Inertia)
func ToursIndexAction(ctx *cartridge.Context) error {
	db := ctx.DB()

	toursWithUsage, err := tours.GetToursWithUsage(db)
	if err != nil {
		ctx.Logger.Error("Failed to get tours with usage", slog.Any("error", err))
		flash.SetFlash(ctx.Ctx, "error", "Failed to load tours")
		toursWithUsage = []tours.TourWithUsage{}
	}

	return inertia.RenderPage(ctx.Ctx, "Tours", inertia.Props{
		"title": "Tours",
		"tours": toursWithUsage,
	})
}

// TourNewPageAction shows the tour creation form (Inertia)
func TourNewPageAction(ctx *cartridge.Context) error {
	return inertia.RenderPage(ctx.Ctx, "TourNew", inertia.Props{
		"title":         "New Tour",
		"trigger_modes": tours.ValidTriggerModes(),
	})
}

// tourForm carries the fields of the tour create/edit forms. Values arrive
// either as form data or as an Inertia.js JSON body.
type tourForm struct {
	Title         string `json:"title"`
	ObjectType    string `json:"object_type"`
	RawScript     string `json:"raw_script"`
	Active        string `json:"active"`
	AutoTriggered string `json:"auto_triggered"`
	TriggerMode   string `json:"trigger_mode"`
	RoleIDs       string `json:"role_ids"`
	IconID        string `json:"icon_id"`
	LanguageCode  string `json:"language_code"`
	RefID         string `json:"ref_id"`
}

func parseTourForm(ctx *cartridge.Context) tourForm {
	form := tourForm{
		Title:         ctx.FormValue("title"),
		ObjectType:    ctx.FormValue("object_type"),
		RawScript:     ctx.FormValue("raw_script"),
		Active:        ctx.FormValue("active"),
		AutoTriggered: ctx.FormValue("auto_triggered"),
		TriggerMode:   ctx.FormValue("trigger_mode"),
		RoleIDs:       ctx.FormValue("role_ids"),
		IconID:        ctx.FormValue("icon_id"),
		LanguageCode:  ctx.FormValue("language_code"),
		RefID:         ctx.FormValue("ref_id"),
	}

	if form.Title == "" {
		var jsonBody tourForm
		if err := ctx.BodyParser(&jsonBody); err == nil {
			form = jsonBody
		}
	}

	return form
}

// applyTourForm copies form values onto a tour. Role ids accept either a
// JSON array ("[1,2]") or a comma-separated list ("1,2").
func applyTourForm(tour *tours.Tour, form tourForm) {
	tour.Title = strings.TrimSpace(form.Title)
	tour.ObjectType = strings.TrimSpace(form.ObjectType)
	tour.RawScript = form.RawScript
	tour.TriggerMode = tours.TriggerMode(form.TriggerMode)
	tour.IconID = strings.TrimSpace(form.IconID)
	tour.LanguageCode = strings.TrimSpace(form.LanguageCode)

	if active, err := models.CoerceBool(form.Active); err == nil {
		tour.Active = active
	}
	if auto, err := models.CoerceBool(form.AutoTriggered); err == nil {
		tour.AutoTriggered = auto
	}

	tour.RoleIDs = parseRoleIDs(form.RoleIDs)

	tour.RefID = nil
	if trimmed := strings.TrimSpace(form.RefID); trimmed != "" {
		if refID, err := strconv.ParseInt(trimmed, 10, 64); err == nil && refID > 0 {
			tour.RefID = &refID
		}
	}
}

func parseRoleIDs(raw string) tours.RoleIDList {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return tours.RoleIDList{}
	}

	if strings.HasPrefix(raw, "[") {
		var ids []int64
		if err := json.Unmarshal([]byte(raw), &ids); err == nil {
			return tours.RoleIDList(ids)
		}
		return tours.RoleIDList{}
	}

	list := tours.RoleIDList{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			list = append(list, id)
		}
	}
	return list
}

// TourCreateAction handles creating a new tour (form submission)
func TourCreateAction(ctx *cartridge.Context) error {
	form := parseTourForm(ctx)

	if strings.TrimSpace(form.Title) == "" {
		flash.SetFlash(ctx.Ctx, "error", "Title is required")
		return ctx.Redirect("/admin/tours/new", fiber.StatusFound)
	}

	tour := tours.Tour{}
	applyTourForm(&tour, form)

	db := ctx.DB()
	if err := tours.CreateTour(db, &tour); err != nil {
		ctx.Logger.Error("Failed to create tour", slog.Any("error", err), slog.String("title", tour.Title))
		flash.SetFlash(ctx.Ctx, "error", "Failed to create tour: "+err.Error())
		return ctx.Redirect("/admin/tours/new", fiber.StatusFound)
	}

	ctx.Logger.Info("Tour created",
		slog.Int64("id", tour.ID),
		slog.String("title", tour.Title))

	flash.SetFlash(ctx.Ctx, "success", "Tour created successfully")
	return ctx.Redirect("/admin/tours/"+strconv.FormatInt(tour.ID, 10)+"/edit", fiber.StatusFound)
}

// TourEditPageAction shows the tour edit form with its steps (Inertia)
func TourEditPageAction(ctx *cartridge.Context) error {
	id, err := ctx.ParamsInt("id")
	if err != nil {
		ctx.Logger.Error("Invalid tour ID", slog.Any("error", err))
		flash.SetFlash(ctx.Ctx, "error", "Invalid tour ID")
		return ctx.Redirect("/admin/tours", fiber.StatusFound)
	}

	db := ctx.DB()

	tour, err := tours.GetTourByID(db, int64(id))
	if err != nil {
		flash.SetFlash(ctx.Ctx, "error", "Tour not found")
		return ctx.Redirect("/admin/tours", fiber.StatusFound)
	}

	stepList, err := steps.GetStepsByTourID(db, tour.ID)
	if err != nil {
		ctx.Logger.Error("Failed to load steps", slog.Any("error", err), slog.Int64("tour_id", tour.ID))
		stepList = []steps.Step{}
	}

	return inertia.RenderPage(ctx.Ctx, "TourEdit", inertia.Props{
		"title":         "Edit Tour",
		"tour":          tour,
		"steps":         stepList,
		"trigger_modes": tours.ValidTriggerModes(),
	})
}

// TourUpdateAction handles updating a tour (form submission)
func TourUpdateAction(ctx *cartridge.Context) error {
	id, err := ctx.ParamsInt("id")
	if err != nil {
		ctx.Logger.Error("Invalid tour ID", slog.Any("error", err))
		flash.SetFlash(ctx.Ctx, "error", "Invalid tour ID")
		return ctx.Redirect("/admin/tours", fiber.StatusFound)
	}

	db := ctx.DB()

	tour, err := tours.GetTourByID(db, int64(id))
	if err != nil {
		flash.SetFlash(ctx.Ctx, "error", "Tour not found")
		return ctx.Redirect("/admin/tours", fiber.StatusFound)
	}

	applyTourForm(tour, parseTourForm(ctx))

	if err := tours.UpdateTour(db, tour); err != nil {
		ctx.Logger.Error("Failed to update tour", slog.Any("error", err), slog.Int64("id", tour.ID))
		flash.SetFlash(ctx.Ctx, "error", "Failed to update tour: "+err.Error())
		return ctx.Redirect("/admin/tours/"+strconv.Itoa(id)+"/edit", fiber.StatusFound)
	}

	flash.SetFlash(ctx.Ctx, "success", "Tour updated successfully")
	return ctx.Redirect("/admin/tours/"+strconv.Itoa(id)+"/edit", fiber.StatusFound)
}

// TourDeleteAction deletes a tour with all of its steps and usage history
func TourDeleteAction(ctx *cartridge.Context) error {
	id, err := ctx.ParamsInt("id")
	if err != nil {
		ctx.Logger.Error("Invalid tour ID", slog.Any("error", err))
		flash.SetFlash(ctx.Ctx, "error", "Invalid tour ID")
		return ctx.Redirect("/admin/tours", fiber.StatusFound)
	}

	db := ctx.DB()

	if err := tours.DeleteTour(db, int64(id)); err != nil {
		ctx.Logger.Error("Failed to delete tour", slog.Any("error", err), slog.Int("id", id))
		flash.SetFlash(ctx.Ctx, "error", "Failed to delete tour")
		return ctx.Redirect("/admin/tours", fiber.StatusFound)
	}

	flash.SetFlash(ctx.Ctx, "success", "Tour deleted successfully")
	return ctx.Redirect("/admin/tours", fiber.StatusFound)
}

// TourActivateAction enables a tour for end users
func TourActivateAction(ctx *cartridge.Context) error {
	return setTourActive(ctx, true)
}

// TourDeactivateAction takes a tour offline without deleting it
func TourDeactivateAction(ctx *cartridge.Context) error {
	return setTourActive(ctx, false)
}

func setTourActive(ctx *cartridge.Context, active bool) error {
	id, err := ctx.ParamsInt("id")
	if err != nil {
		ctx.Logger.Error("Invalid tour ID", slog.Any("error", err))
		flash.SetFlash(ctx.Ctx, "error", "Invalid tour ID")
		return ctx.Redirect("/admin/tours", fiber.StatusFound)
	}

	db := ctx.DB()

	if err := tours.SetTourActive(db, int64(id), active); err != nil {
		ctx.Logger.Error("Failed to toggle tour", slog.Any("error", err), slog.Int("id", id))
		flash.SetFlash(ctx.Ctx, "error", "Failed to update tour")
		return ctx.Redirect("/admin/tours", fiber.StatusFound)
	}

	message := "Tour deactivated"
	if active {
		message = "Tour activated"
	}
	flash.SetFlash(ctx.Ctx, "success", message)
	return ctx.Redirect("/admin/tours", fiber.StatusFound)
}

// TourResetStatisticsAction wipes a tour's usage history and per-user
// state so its statistics start from scratch
func TourResetStatisticsAction(ctx *cartridge.Context) error {
	id, err := ctx.ParamsInt("id")
	if err != nil {
		ctx.Logger.Error("Invalid tour ID", slog.Any("error", err))
		flash.SetFlash(ctx.Ctx, "error", "Invalid tour ID")
		return ctx.Redirect("/admin/tours", fiber.StatusFound)
	}

	db := ctx.DB()

	if err := usage.ResetTour(db, ctx.Logger, int64(id)); err != nil {
		ctx.Logger.Error("Failed to reset tour statistics", slog.Any("error", err), slog.Int("id", id))
		flash.SetFlash(ctx.Ctx, "error", "Failed to reset statistics")
		return ctx.Redirect("/admin/tours", fiber.StatusFound)
	}

	flash.SetFlash(ctx.Ctx, "success", "Tour statistics reset")
	return ctx.Redirect("/admin/tours", fiber.StatusFound)
}

// TourResetCompletionAction re-offers the tour to every user who already
// saw it, keeping the usage history intact
func TourResetCompletionAction(ctx *cartridge.Context) error {
	id, err := ctx.ParamsInt("id")
	if err != nil {
		ctx.Logger.Error("Invalid tour ID", slog.Any("error", err))
		flash.SetFlash(ctx.Ctx, "error", "Invalid tour ID")
		return ctx.Redirect("/admin/tours", fiber.StatusFound)
	}

	db := ctx.DB()

	if err := usage.ResetCompletionStatus(db, ctx.Logger, int64(id)); err != nil {
		ctx.Logger.Error("Failed to reset completion status", slog.Any("error", err), slog.Int("id", id))
		flash.SetFlash(ctx.Ctx, "error", "Failed to reset completion status")
		return ctx.Redirect("/admin/tours", fiber.StatusFound)
	}

	flash.SetFlash(ctx.Ctx, "success", "Tour will be shown to all users again")
	return ctx.Redirect("/admin/tours", fiber.StatusFound)
}
