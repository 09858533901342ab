package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/crypto"
	"github.com/karloscodes/cartridge/flash"
	"github.com/karloscodes/cartridge/inertia"
	"log/slog"

	"tourly/internal/users"
)

// RenderLoginAction renders the login page
func RenderLoginAction(ctx *cartridge.Context) error {
	ctx.Logger.Debug("is authenticated", slog.Bool("isAuthenticated", ctx.Session.IsAuthenticated(ctx.Ctx)))

	if ctx.Session.IsAuthenticated(ctx.Ctx) {
		return ctx.Redirect("/admin/tours")
	}

	// csrfToken and flash are auto-injected
	return inertia.RenderPage(ctx.Ctx, "Login", inertia.Props{})
}

// ProcessLoginAction handles the login form submission
func ProcessLoginAction(ctx *cartridge.Context) error {
	// Parse login form - try both form value and JSON body (for Inertia.js)
	email := ctx.FormValue("email")
	password := ctx.FormValue("password")

	if email == "" && password == "" {
		var jsonBody struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := ctx.BodyParser(&jsonBody); err == nil {
			if jsonBody.Email != "" {
				email = jsonBody.Email
			}
			if jsonBody.Password != "" {
				password = jsonBody.Password
			}
		}
	}

	if email == "" || password == "" {
		flash.SetFlash(ctx.Ctx, "error", "Email and password are required")
		return ctx.Redirect("/login", fiber.StatusFound)
	}

	db := ctx.DB()

	user, result := users.FindByEmail(db, email)

	// Always verify a password so response time does not reveal whether
	// the email exists.
	var passwordValid bool
	if result != nil {
		ctx.Logger.Debug("User not found during login",
			slog.String("email", email))
		dummyHash := "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy" // bcrypt hash of "dummy"
		crypto.VerifyPassword(dummyHash, password)
		passwordValid = false
	} else {
		passwordValid = crypto.VerifyPassword(user.EncryptedPassword, password)
		if !passwordValid {
			ctx.Logger.Debug("Invalid password attempt",
				slog.String("email", email))
		}
	}

	if !passwordValid {
		// Generic error message - don't reveal whether email exists
		flash.SetFlash(ctx.Ctx, "error", "Invalid email or password")
		return ctx.Redirect("/login", fiber.StatusFound)
	}

	if err := ctx.Session.SetSession(ctx.Ctx, user.ID); err != nil {
		ctx.Logger.Error("Failed to set session", slog.Any("error", err))
		flash.SetFlash(ctx.Ctx, "error", "Login failed")
		return ctx.Redirect("/login", fiber.StatusFound)
	}
	ctx.Logger.Debug("Login successful",
		slog.String("email", email),
		slog.Int("userId", int(user.ID)))

	return ctx.Redirect("/admin/tours", fiber.StatusFound)
}

// LogoutAction handles user logout
func LogoutAction(ctx *cartridge.Context) error {
	userID, isAuthenticated := ctx.Session.GetUserID(ctx.Ctx)
	ctx.Logger.Debug("LogoutAction: Current auth state",
		slog.Uint64("userID", uint64(userID)),
		slog.Bool("isAuthenticated", isAuthenticated))

	ctx.Session.ClearSession(ctx.Ctx)

	flash.SetFlash(ctx.Ctx, "success", "You have been successfully logged out")

	return ctx.Redirect("/login", fiber.StatusFound)
}
