package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"log/slog"

	"tourly/internal/capture"
	"tourly/internal/recording"
	"tourly/internal/settings"
	"tourly/internal/steps"
)

// recordingRequest is the shared shape of the recording API requests. Only
// the fields relevant to each endpoint are read.
type recordingRequest struct {
	Token     string                   `json:"token"`
	TourID    int64                    `json:"tour_id"`
	Path      string                   `json:"path"`
	StepIndex int                      `json:"step_index"`
	Mode      string                   `json:"mode"`
	Snapshot  *capture.ElementSnapshot `json:"snapshot"`
	Steps     []steps.Step             `json:"steps"`
}

func parseRecordingRequest(ctx *cartridge.Context) (*recordingRequest, error) {
	var req recordingRequest
	if err := ctx.BodyParser(&req); err != nil {
		return nil, err
	}
	if req.Token == "" {
		req.Token = ctx.Query("token")
	}
	return &req, nil
}

func recordingError(ctx *cartridge.Context, err error) error {
	var notFound *recording.SessionNotFoundError
	if errors.As(err, &notFound) {
		return ctx.Status(http.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Recording session not found",
		})
	}

	ctx.Logger.Error("Recording request failed", slog.Any("error", err))
	return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"message": "Recording request failed",
	})
}

// RecordingStartAction opens a recording session for a tour and returns
// its token
func RecordingStartAction(ctx *cartridge.Context) error {
	req, err := parseRecordingRequest(ctx)
	if err != nil || req.TourID == 0 {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Missing tour_id parameter",
		})
	}

	db := ctx.DB()
	session, err := recording.Start(db, ctx.Logger, req.TourID)
	if err != nil {
		return recordingError(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"success": true,
		"token":   session.Token,
		"tour_id": session.TourID,
	})
}

// RecordingCaptureAction classifies a captured element snapshot and
// appends it as a step draft. Debounced captures and paused sessions
// return success with no step.
func RecordingCaptureAction(ctx *cartridge.Context) error {
	req, err := parseRecordingRequest(ctx)
	if err != nil || req.Token == "" {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Missing token parameter",
		})
	}

	db := ctx.DB()
	playerConfig := settings.GetPlayerConfig(db)

	draft, err := recording.Capture(db, ctx.Logger, req.Token, req.Snapshot,
		playerConfig.CaptureDebounce, playerConfig.ArmingWindow)
	if err != nil {
		return recordingError(ctx, err)
	}

	if draft == nil {
		return ctx.JSON(fiber.Map{
			"success":  true,
			"captured": false,
		})
	}

	return ctx.JSON(fiber.Map{
		"success":  true,
		"captured": true,
		"step":     draft,
	})
}

// RecordingClickAction reports a click during the arming window. A click
// on the just-captured element binds advance-on-click to that step.
func RecordingClickAction(ctx *cartridge.Context) error {
	req, err := parseRecordingRequest(ctx)
	if err != nil || req.Token == "" {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Missing token parameter",
		})
	}

	db := ctx.DB()
	bound, err := recording.ClickObserved(db, ctx.Logger, req.Token)
	if err != nil {
		return recordingError(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"success": true,
		"bound":   bound,
	})
}

// RecordingNavigationAction reports a location change: the most recent
// draft is tagged with the new path
func RecordingNavigationAction(ctx *cartridge.Context) error {
	req, err := parseRecordingRequest(ctx)
	if err != nil || req.Token == "" {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Missing token parameter",
		})
	}

	db := ctx.DB()
	if err := recording.NavigationObserved(db, ctx.Logger, req.Token, req.Path); err != nil {
		return recordingError(ctx, err)
	}

	return ctx.JSON(fiber.Map{"success": true})
}

// RecordingPauseAction suspends capture without losing drafts
func RecordingPauseAction(ctx *cartridge.Context) error {
	return setRecordingPaused(ctx, true)
}

// RecordingResumeAction resumes a paused session
func RecordingResumeAction(ctx *cartridge.Context) error {
	return setRecordingPaused(ctx, false)
}

func setRecordingPaused(ctx *cartridge.Context, paused bool) error {
	req, err := parseRecordingRequest(ctx)
	if err != nil || req.Token == "" {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Missing token parameter",
		})
	}

	db := ctx.DB()
	if paused {
		err = recording.Pause(db, ctx.Logger, req.Token)
	} else {
		err = recording.Resume(db, ctx.Logger, req.Token)
	}
	if err != nil {
		return recordingError(ctx, err)
	}

	return ctx.JSON(fiber.Map{"success": true, "paused": paused})
}

// RecordingDiscardAction drops the session and every captured draft
func RecordingDiscardAction(ctx *cartridge.Context) error {
	req, err := parseRecordingRequest(ctx)
	if err != nil || req.Token == "" {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Missing token parameter",
		})
	}

	db := ctx.DB()
	if err := recording.Discard(db, ctx.Logger, req.Token); err != nil {
		return recordingError(ctx, err)
	}

	return ctx.JSON(fiber.Map{"success": true})
}

// RecordingSaveAction commits the session: the tour's step list is
// replaced by the drafts. When the client submits edited drafts they
// supersede the server-side ones.
func RecordingSaveAction(ctx *cartridge.Context) error {
	req, err := parseRecordingRequest(ctx)
	if err != nil || req.Token == "" {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Missing token parameter",
		})
	}

	db := ctx.DB()

	session, err := recording.GetByToken(db, req.Token)
	if err != nil {
		return recordingError(ctx, err)
	}

	if len(req.Steps) > 0 {
		if err := recording.ReplaceDrafts(db, ctx.Logger, req.Token, req.Steps); err != nil {
			return recordingError(ctx, err)
		}
	}

	if err := recording.Commit(db, ctx.Logger, req.Token); err != nil {
		var notFound *recording.SessionNotFoundError
		if errors.As(err, &notFound) {
			return recordingError(ctx, err)
		}
		ctx.Logger.Warn("Recording commit rejected", slog.Any("error", err))
		return ctx.JSON(fiber.Map{
			"success": false,
			"message": "Cannot save a recording without captured steps",
		})
	}

	return ctx.JSON(fiber.Map{
		"success":      true,
		"message":      "Recording saved",
		"redirect_url": "/admin/tours/" + strconv.FormatInt(session.TourID, 10) + "/edit",
	})
}

// RecordingBindAction applies an edit-mode capture to a recorded step:
// bind the hovered element as onNext or onPrev, or clear both bindings
func RecordingBindAction(ctx *cartridge.Context) error {
	req, err := parseRecordingRequest(ctx)
	if err != nil || req.Token == "" {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Missing token parameter",
		})
	}

	db := ctx.DB()
	err = recording.Bind(db, ctx.Logger, req.Token, req.StepIndex,
		recording.BindMode(req.Mode), req.Snapshot)
	if err != nil {
		var notFound *recording.SessionNotFoundError
		if errors.As(err, &notFound) {
			return recordingError(ctx, err)
		}
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	}

	return ctx.JSON(fiber.Map{"success": true})
}
