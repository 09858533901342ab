package v1

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"tourly/internal/eligibility"
	"tourly/internal/steps"
	"tourly/internal/usage"
)

// paramValue reads a request parameter from the query string, form body or
// JSON body, in that order. The tracking endpoints accept both GET and POST
// so embedding pages can use whichever transport suits them.
func paramValue(c *fiber.Ctx, name string) string {
	if v := c.Query(name); v != "" {
		return v
	}
	if v := c.FormValue(name); v != "" {
		return v
	}
	if body := c.Body(); len(body) > 0 {
		var parsed map[string]interface{}
		if err := json.Unmarshal(body, &parsed); err == nil {
			switch v := parsed[name].(type) {
			case string:
				return v
			case float64:
				return strconv.FormatFloat(v, 'f', -1, 64)
			case bool:
				return strconv.FormatBool(v)
			}
		}
	}
	return ""
}

func int64Param(c *fiber.Ctx, name string) (int64, bool) {
	raw := paramValue(c, name)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

func missingParam(ctx *cartridge.Context, name string) error {
	return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"error":   "Missing " + name + " parameter",
	})
}

// eligibilityContext assembles the requesting user's context from request
// parameters. The embedding platform owns identity, so user_id is always
// explicit rather than taken from a session.
func eligibilityContext(c *fiber.Ctx) (eligibility.Context, bool) {
	userID, ok := int64Param(c, "user_id")
	if !ok {
		return eligibility.Context{}, false
	}

	ec := eligibility.Context{
		UserID:          userID,
		UserLanguage:    paramValue(c, "language"),
		CurrentObjType:  paramValue(c, "obj_type"),
		CurrentCmdClass: paramValue(c, "cmd_class"),
	}

	for _, part := range strings.Split(paramValue(c, "roles"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if roleID, err := strconv.ParseInt(part, 10, 64); err == nil {
			ec.UserRoles = append(ec.UserRoles, roleID)
		}
	}

	if refID, ok := int64Param(c, "ref_id"); ok {
		ec.CurrentRefID = &refID
	}

	return ec, true
}

// GetAutostartTourHandler returns the script of the first tour the user is
// eligible to autostart on the current page, or a null tour id when none
// applies. Eligibility failures never produce errors: the page simply gets
// no tour.
func GetAutostartTourHandler(ctx *cartridge.Context) error {
	ctx.Logger.Debug("Received autostart request",
		slog.String("ip", getClientIP(ctx.Ctx)),
		slog.String("path", ctx.Path()))

	ec, ok := eligibilityContext(ctx.Ctx)
	if !ok {
		return missingParam(ctx, "user_id")
	}

	db := ctx.DBManager.GetConnection()
	rendered, tourID := eligibility.SelectAutostartTour(db, ctx.Logger, nil, ec)
	if tourID == 0 {
		return ctx.JSON(fiber.Map{
			"success": true,
			"tour_id": nil,
		})
	}

	ctx.Logger.Info("Autostarting tour",
		slog.Int64("tour_id", tourID),
		slog.Int64("user_id", ec.UserID))
	return ctx.JSON(fiber.Map{
		"success": true,
		"tour_id": tourID,
		"script":  json.RawMessage(rendered),
	})
}

// GetTriggerTourHandler resolves a manual "gtour-<id>" trigger token. The
// response shape matches autostart so the player treats both paths the same.
func GetTriggerTourHandler(ctx *cartridge.Context) error {
	trigger := ctx.Params("trigger")

	ec, ok := eligibilityContext(ctx.Ctx)
	if !ok {
		return missingParam(ctx, "user_id")
	}

	db := ctx.DBManager.GetConnection()
	rendered, tourID := eligibility.SelectManualTour(db, ctx.Logger, nil, trigger, ec)
	if tourID == 0 {
		return ctx.JSON(fiber.Map{
			"success": true,
			"tour_id": nil,
		})
	}

	ctx.Logger.Info("Manual tour trigger resolved",
		slog.String("trigger", trigger),
		slog.Int64("tour_id", tourID),
		slog.Int64("user_id", ec.UserID))
	return ctx.JSON(fiber.Map{
		"success": true,
		"tour_id": tourID,
		"script":  json.RawMessage(rendered),
	})
}

// UpdateTourProgressHandler records that the user reached a step. Step zero
// opens a fresh history entry; reaching the last step marks the run
// completed.
func UpdateTourProgressHandler(ctx *cartridge.Context) error {
	tourID, ok := int64Param(ctx.Ctx, "tour_id")
	if !ok {
		return missingParam(ctx, "tour_id")
	}
	userID, ok := int64Param(ctx.Ctx, "user_id")
	if !ok {
		return missingParam(ctx, "user_id")
	}
	stepIndexValue, ok := int64Param(ctx.Ctx, "step_index")
	if !ok {
		return missingParam(ctx, "step_index")
	}
	stepIndex := int(stepIndexValue)
	historyID, _ := int64Param(ctx.Ctx, "history_id")

	db := ctx.DBManager.GetConnection()
	list, err := steps.GetStepsByTourID(db, tourID)
	if err != nil {
		ctx.Logger.Error("Failed to load steps for progress update",
			slog.Int64("tour_id", tourID), slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to update progress",
		})
	}

	if stepIndex == 0 {
		historyID, err = usage.SetStarted(db, ctx.Logger, tourID, userID)
		if err != nil {
			ctx.Logger.Error("Failed to open usage entry",
				slog.Int64("tour_id", tourID), slog.Any("error", err))
			return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"error":   "Failed to update progress",
			})
		}
	}

	historyID, completed, err := usage.UpdateLastStep(db, ctx.Logger, tourID, userID, stepIndex, len(list), historyID)
	if err != nil {
		ctx.Logger.Error("Failed to update tour progress",
			slog.Int64("tour_id", tourID), slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to update progress",
		})
	}

	return ctx.JSON(fiber.Map{
		"success":          true,
		"progress_updated": true,
		"tour_id":          tourID,
		"step_index":       stepIndex,
		"completed":        completed,
		"history_id":       historyID,
	})
}

// TerminateTourHandler closes the user's run of a tour, whether they
// finished it or bailed out partway.
func TerminateTourHandler(ctx *cartridge.Context) error {
	tourID, ok := int64Param(ctx.Ctx, "tour_id")
	if !ok {
		return missingParam(ctx, "tour_id")
	}
	userID, ok := int64Param(ctx.Ctx, "user_id")
	if !ok {
		return missingParam(ctx, "user_id")
	}
	historyID, _ := int64Param(ctx.Ctx, "history_id")

	db := ctx.DBManager.GetConnection()
	if err := usage.SetTerminated(db, ctx.Logger, tourID, userID, historyID); err != nil {
		ctx.Logger.Error("Failed to terminate tour",
			slog.Int64("tour_id", tourID),
			slog.Int64("user_id", userID),
			slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to terminate tour",
		})
	}

	return ctx.JSON(fiber.Map{
		"success":    true,
		"terminated": true,
		"tour_id":    tourID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// ResetTourUsageHandler clears the user's tracking state for a tour so it
// can autostart again.
func ResetTourUsageHandler(ctx *cartridge.Context) error {
	tourID, ok := int64Param(ctx.Ctx, "tour_id")
	if !ok {
		return missingParam(ctx, "tour_id")
	}
	userID, ok := int64Param(ctx.Ctx, "user_id")
	if !ok {
		return missingParam(ctx, "user_id")
	}

	db := ctx.DBManager.GetConnection()
	if err := usage.ResetForUser(db, ctx.Logger, tourID, userID); err != nil {
		ctx.Logger.Error("Failed to reset tour usage",
			slog.Int64("tour_id", tourID),
			slog.Int64("user_id", userID),
			slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to reset tour",
		})
	}

	return ctx.JSON(fiber.Map{
		"success": true,
		"reset":   true,
		"tour_id": tourID,
	})
}
