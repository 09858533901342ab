package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
)

// HomeIndexAction handles the root path
func HomeIndexAction(ctx *cartridge.Context) error {
	if ctx.Session.IsAuthenticated(ctx.Ctx) {
		return ctx.Redirect("/admin/tours", fiber.StatusFound)
	}
	return ctx.Redirect("/login", fiber.StatusFound)
}
