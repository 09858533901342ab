package v1

import (
	"bytes"
	_ "embed"
	"text/template"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
)

//go:embed player.js
var playerTemplate string

// GetPlayerAction serves the embeddable player script with the server's
// base URL injected, using ETag-based caching so returning clients get a
// 304 instead of the full payload.
func GetPlayerAction(ctx *cartridge.Context) error {
	tmpl, err := template.New("./api/v1/player.js").Parse(playerTemplate)
	if err != nil {
		ctx.Logger.Error("Failed to parse player template", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	var buf bytes.Buffer
	data := map[string]string{
		"BaseURL": ctx.BaseURL(),
	}
	if err := tmpl.Execute(&buf, data); err != nil {
		ctx.Logger.Error("Failed to render player template", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	content := buf.Bytes()
	etag := generateETag(content)

	ifNoneMatch := ctx.Get("If-None-Match")
	if ifNoneMatch == etag {
		ctx.Logger.Debug("ETag match, returning 304",
			slog.String("etag", etag),
			slog.String("path", ctx.Path()))
		return ctx.Status(fiber.StatusNotModified).Send(nil) // No body for 304
	}

	ctx.Set("Content-Type", "application/javascript")
	ctx.Set("Cache-Control", "public, max-age=3600") // 1 hour
	ctx.Set("ETag", etag)
	ctx.Set("Cross-Origin-Resource-Policy", "cross-origin")
	ctx.Logger.Debug("Serving player with new ETag",
		slog.String("etag", etag),
		slog.String("path", ctx.Path()))
	return ctx.Send(content)
}
