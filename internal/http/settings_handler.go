package http

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/flash"
	"github.com/karloscodes/cartridge/inertia"
	"log/slog"

	"tourly/internal/settings"
	"tourly/internal/steps"
)

// SettingsPageAction shows the player settings page (Inertia)
func SettingsPageAction(ctx *cartridge.Context) error {
	db := ctx.DB()

	display, err := settings.GetAllSettingsForDisplay(db)
	if err != nil {
		ctx.Logger.Error("Failed to load settings", slog.Any("error", err))
		flash.SetFlash(ctx.Ctx, "error", "Failed to load settings")
		display = []settings.SettingResponse{}
	}

	return inertia.RenderPage(ctx.Ctx, "Settings", inertia.Props{
		"title":    "Settings",
		"settings": display,
	})
}

// validatePositiveMillis checks a form value that must be a positive
// integer number of milliseconds or minutes. Empty means "keep default".
func validatePositiveMillis(value string) (bool, string) {
	if value == "" {
		return true, ""
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return false, "Value must be a positive integer: " + value
	}
	return true, ""
}

// SettingsFormAction handles the player settings form submission
func SettingsFormAction(ctx *cartridge.Context) error {
	updates := map[string]string{
		settings.KeyDefaultPlacement:    ctx.FormValue("default_placement"),
		settings.KeyCaptureDebounceMs:   ctx.FormValue("capture_debounce_ms"),
		settings.KeyArmingWindowMs:      ctx.FormValue("arming_window_ms"),
		settings.KeyRecordingTTLMinutes: ctx.FormValue("recording_ttl_minutes"),
		settings.KeyAllowedOrigins:      ctx.FormValue("allowed_origins"),
	}

	for _, key := range []string{settings.KeyCaptureDebounceMs, settings.KeyArmingWindowMs, settings.KeyRecordingTTLMinutes} {
		if valid, msg := validatePositiveMillis(updates[key]); !valid {
			ctx.Logger.Warn("invalid setting submitted", slog.String("key", key), slog.String("error", msg))
			flash.SetFlash(ctx.Ctx, "error", msg)
			return ctx.Redirect("/admin/settings", fiber.StatusFound)
		}
	}

	if placement := updates[settings.KeyDefaultPlacement]; placement != "" {
		updates[settings.KeyDefaultPlacement] = string(steps.CoercePlacement(placement))
	}

	db := ctx.DB()

	for key, value := range updates {
		if value == "" {
			continue
		}
		if err := settings.UpdateSetting(db, key, value); err != nil {
			ctx.Logger.Error("failed to update setting", slog.String("key", key), slog.Any("error", err))
			flash.SetFlash(ctx.Ctx, "error", "Failed to save settings")
			return ctx.Redirect("/admin/settings", fiber.StatusFound)
		}
	}

	ctx.Logger.Info("player settings updated")
	flash.SetFlash(ctx.Ctx, "success", "Settings saved successfully!")
	return ctx.Redirect("/admin/settings", fiber.StatusFound)
}
