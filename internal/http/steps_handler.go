package http

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/flash"
	"log/slog"

	"tourly/internal/models"
	"tourly/internal/steps"
)

// stepForm carries the fields of the step create/edit forms
type stepForm struct {
	Title         string `json:"title"`
	Content       string `json:"content"`
	ContentPageID string `json:"content_page_id"`
	Element       string `json:"element"`
	ElementType   string `json:"element_type"`
	Placement     string `json:"placement"`
	Orphan        string `json:"orphan"`
	OnNext        string `json:"on_next"`
	OnPrev        string `json:"on_prev"`
	Path          string `json:"path"`
}

func parseStepForm(ctx *cartridge.Context) stepForm {
	form := stepForm{
		Title:         ctx.FormValue("title"),
		Content:       ctx.FormValue("content"),
		ContentPageID: ctx.FormValue("content_page_id"),
		Element:       ctx.FormValue("element"),
		ElementType:   ctx.FormValue("element_type"),
		Placement:     ctx.FormValue("placement"),
		Orphan:        ctx.FormValue("orphan"),
		OnNext:        ctx.FormValue("on_next"),
		OnPrev:        ctx.FormValue("on_prev"),
		Path:          ctx.FormValue("path"),
	}

	if form.Title == "" && form.Element == "" {
		var jsonBody stepForm
		if err := ctx.BodyParser(&jsonBody); err == nil {
			form = jsonBody
		}
	}

	return form
}

func applyStepForm(step *steps.Step, form stepForm) {
	step.Title = strings.TrimSpace(form.Title)
	step.Content = form.Content
	step.Element = strings.TrimSpace(form.Element)
	step.ElementType = steps.ElementType(form.ElementType)
	step.Placement = steps.CoercePlacement(form.Placement)
	step.OnNext = form.OnNext
	step.OnPrev = form.OnPrev
	step.Path = strings.TrimSpace(form.Path)

	if orphan, err := models.CoerceBool(form.Orphan); err == nil {
		step.Orphan = orphan
	}

	step.ContentPageID = nil
	if trimmed := strings.TrimSpace(form.ContentPageID); trimmed != "" {
		if pageID, err := strconv.ParseInt(trimmed, 10, 64); err == nil && pageID > 0 {
			step.ContentPageID = &pageID
		}
	}
}

// StepCreateAction appends a new step to a tour (form submission)
func StepCreateAction(ctx *cartridge.Context) error {
	tourID, err := ctx.ParamsInt("id")
	if err != nil {
		ctx.Logger.Error("Invalid tour ID", slog.Any("error", err))
		flash.SetFlash(ctx.Ctx, "error", "Invalid tour ID")
		return ctx.Redirect("/admin/tours", fiber.StatusFound)
	}
	editURL := "/admin/tours/" + strconv.Itoa(tourID) + "/edit"

	step := steps.Step{TourID: int64(tourID)}
	applyStepForm(&step, parseStepForm(ctx))

	db := ctx.DB()
	if err := steps.CreateStep(db, ctx.Logger, &step); err != nil {
		ctx.Logger.Error("Failed to create step", slog.Any("error", err), slog.Int("tour_id", tourID))
		flash.SetFlash(ctx.Ctx, "error", "Failed to create step: "+err.Error())
		return ctx.Redirect(editURL, fiber.StatusFound)
	}

	flash.SetFlash(ctx.Ctx, "success", "Step created successfully")
	return ctx.Redirect(editURL, fiber.StatusFound)
}

// StepUpdateAction updates an existing step (form submission)
func StepUpdateAction(ctx *cartridge.Context) error {
	tourID, err := ctx.ParamsInt("id")
	if err != nil {
		ctx.Logger.Error("Invalid tour ID", slog.Any("error", err))
		flash.SetFlash(ctx.Ctx, "error", "Invalid tour ID")
		return ctx.Redirect("/admin/tours", fiber.StatusFound)
	}
	editURL := "/admin/tours/" + strconv.Itoa(tourID) + "/edit"

	stepID, err := ctx.ParamsInt("stepId")
	if err != nil {
		ctx.Logger.Error("Invalid step ID", slog.Any("error", err))
		flash.SetFlash(ctx.Ctx, "error", "Invalid step ID")
		return ctx.Redirect(editURL, fiber.StatusFound)
	}

	db := ctx.DB()

	step, err := steps.GetStepByID(db, int64(stepID))
	if err != nil || step.TourID != int64(tourID) {
		flash.SetFlash(ctx.Ctx, "error", "Step not found")
		return ctx.Redirect(editURL, fiber.StatusFound)
	}

	applyStepForm(step, parseStepForm(ctx))

	if err := steps.UpdateStep(db, ctx.Logger, step); err != nil {
		ctx.Logger.Error("Failed to update step", slog.Any("error", err), slog.Int("step_id", stepID))
		flash.SetFlash(ctx.Ctx, "error", "Failed to update step: "+err.Error())
		return ctx.Redirect(editURL, fiber.StatusFound)
	}

	flash.SetFlash(ctx.Ctx, "success", "Step updated successfully")
	return ctx.Redirect(editURL, fiber.StatusFound)
}

// StepDeleteAction removes a step and closes the resulting ordering gap
func StepDeleteAction(ctx *cartridge.Context) error {
	tourID, err := ctx.ParamsInt("id")
	if err != nil {
		ctx.Logger.Error("Invalid tour ID", slog.Any("error", err))
		flash.SetFlash(ctx.Ctx, "error", "Invalid tour ID")
		return ctx.Redirect("/admin/tours", fiber.StatusFound)
	}
	editURL := "/admin/tours/" + strconv.Itoa(tourID) + "/edit"

	stepID, err := ctx.ParamsInt("stepId")
	if err != nil {
		ctx.Logger.Error("Invalid step ID", slog.Any("error", err))
		flash.SetFlash(ctx.Ctx, "error", "Invalid step ID")
		return ctx.Redirect(editURL, fiber.StatusFound)
	}

	db := ctx.DB()

	if err := steps.DeleteStep(db, ctx.Logger, int64(stepID)); err != nil {
		ctx.Logger.Error("Failed to delete step", slog.Any("error", err), slog.Int("step_id", stepID))
		flash.SetFlash(ctx.Ctx, "error", "Failed to delete step")
		return ctx.Redirect(editURL, fiber.StatusFound)
	}

	flash.SetFlash(ctx.Ctx, "success", "Step deleted successfully")
	return ctx.Redirect(editURL, fiber.StatusFound)
}

// StepMoveAction moves a step to a new position in its tour's sequence
func StepMoveAction(ctx *cartridge.Context) error {
	tourID, err := ctx.ParamsInt("id")
	if err != nil {
		ctx.Logger.Error("Invalid tour ID", slog.Any("error", err))
		flash.SetFlash(ctx.Ctx, "error", "Invalid tour ID")
		return ctx.Redirect("/admin/tours", fiber.StatusFound)
	}
	editURL := "/admin/tours/" + strconv.Itoa(tourID) + "/edit"

	stepID, err := ctx.ParamsInt("stepId")
	if err != nil {
		ctx.Logger.Error("Invalid step ID", slog.Any("error", err))
		flash.SetFlash(ctx.Ctx, "error", "Invalid step ID")
		return ctx.Redirect(editURL, fiber.StatusFound)
	}

	position := ctx.FormValue("position")
	if position == "" {
		var jsonBody struct {
			Position string `json:"position"`
		}
		if err := ctx.BodyParser(&jsonBody); err == nil {
			position = jsonBody.Position
		}
	}
	newPosition, err := strconv.Atoi(position)
	if err != nil {
		flash.SetFlash(ctx.Ctx, "error", "Invalid position")
		return ctx.Redirect(editURL, fiber.StatusFound)
	}

	db := ctx.DB()

	if err := steps.MoveStep(db, ctx.Logger, int64(stepID), newPosition); err != nil {
		ctx.Logger.Error("Failed to move step", slog.Any("error", err), slog.Int("step_id", stepID))
		flash.SetFlash(ctx.Ctx, "error", "Failed to move step")
		return ctx.Redirect(editURL, fiber.StatusFound)
	}

	flash.SetFlash(ctx.Ctx, "success", "Step moved")
	return ctx.Redirect(editURL, fiber.StatusFound)
}
