package internal

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "tourly/api/v1"
	"tourly/internal/config"
	"tourly/internal/http"
	"tourly/internal/settings"
)

// publicCORSConfig is the baseline CORS configuration for the public
// player endpoints. The allowed origins can be narrowed through the
// allowed_origins setting at mount time.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

// SetupSession configures session management on the server.
func SetupSession(srv *cartridge.Server) {
	cfg := config.GetConfig()
	sessionMgr := cartridge.NewSessionManager(cartridge.SessionConfig{
		CookieName: cfg.AppName + "_session",
		Secret:     cfg.GetSessionSecret(),
		TTL:        time.Duration(cfg.GetLoginSessionTimeout()) * time.Second,
		Secure:     cfg.IsProduction(),
		LoginPath:  "/login",
	})
	srv.SetSession(sessionMgr)
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server) {
	SetupSession(srv)
	MountAppRoutesWithoutSession(srv)
}

// MountAppRoutesWithoutSession mounts routes without setting up session.
func MountAppRoutesWithoutSession(srv *cartridge.Server) {
	cfg := config.GetConfig()
	sessionMgr := srv.Session()

	db := srv.GetDBManager().GetConnection()

	// Narrow the public CORS origins when the admin has configured an
	// explicit allowlist.
	corsConfig := publicCORSConfig
	if origins := settings.GetPlayerConfig(db).AllowedOrigins; len(origins) > 0 {
		narrowed := *publicCORSConfig
		narrowed.AllowOrigins = strings.Join(origins, ",")
		corsConfig = &narrowed
	}

	// Rate limiting only applies in production: in development and test it
	// would interfere with rapid capture traffic and test runs.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// Public tracking API limiter. The player reports progress on every
	// step transition, so the ceiling is generous.
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Stricter rate limiter for auth endpoints to slow brute force attempts
	authRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(10),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Public tracking API: CORS first so rejected requests still carry CORS
	// headers.
	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		WriteConcurrency: false,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       corsConfig,
	}

	// Player SDK delivery config
	playerConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       corsConfig,
	}

	adminConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{
			sessionMgr.Middleware(),
		},
	}

	// === ROOT ROUTES ===
	srv.Get("/", http.HomeIndexAction)

	// Health check endpoint
	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)

	// === PUBLIC API ROUTES ===
	noContent := func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}

	srv.Get("/x/api/v1/tours/autostart", v1.GetAutostartTourHandler, publicAPIConfig)
	srv.Options("/x/api/v1/tours/autostart", noContent, publicAPIConfig)

	srv.Get("/x/api/v1/tours/trigger/:trigger", v1.GetTriggerTourHandler, publicAPIConfig)
	srv.Options("/x/api/v1/tours/trigger/:trigger", noContent, publicAPIConfig)

	srv.Get("/x/api/v1/tours/terminate", v1.TerminateTourHandler, publicAPIConfig)
	srv.Post("/x/api/v1/tours/terminate", v1.TerminateTourHandler, publicAPIConfig)
	srv.Options("/x/api/v1/tours/terminate", noContent, publicAPIConfig)

	srv.Get("/x/api/v1/tours/progress", v1.UpdateTourProgressHandler, publicAPIConfig)
	srv.Post("/x/api/v1/tours/progress", v1.UpdateTourProgressHandler, publicAPIConfig)
	srv.Options("/x/api/v1/tours/progress", noContent, publicAPIConfig)

	srv.Get("/x/api/v1/tours/reset", v1.ResetTourUsageHandler, publicAPIConfig)
	srv.Options("/x/api/v1/tours/reset", noContent, publicAPIConfig)

	// === PLAYER SDK ROUTES ===
	srv.Get("/y/api/v1/player.js", v1.GetPlayerAction, playerConfig)

	// === AUTHENTICATION ROUTES ===
	loginConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{authRateLimiter},
	}
	srv.Get("/login", http.RenderLoginAction)
	srv.Post("/login", http.ProcessLoginAction, loginConfig)
	srv.Post("/logout", http.LogoutAction)

	// === PROTECTED ADMIN ROUTES ===
	srv.Get("/admin/tours", http.ToursIndexAction, adminConfig)
	srv.Get("/admin/tours/new", http.TourNewPageAction, adminConfig)
	srv.Post("/admin/tours", http.TourCreateAction, adminConfig)
	srv.Get("/admin/tours/:id/edit", http.TourEditPageAction, adminConfig)
	srv.Post("/admin/tours/:id", http.TourUpdateAction, adminConfig)
	srv.Delete("/admin/tours/:id", http.TourDeleteAction, adminConfig)
	srv.Post("/admin/tours/:id/delete", http.TourDeleteAction, adminConfig)
	srv.Post("/admin/tours/:id/activate", http.TourActivateAction, adminConfig)
	srv.Post("/admin/tours/:id/deactivate", http.TourDeactivateAction, adminConfig)
	srv.Post("/admin/tours/:id/reset-statistics", http.TourResetStatisticsAction, adminConfig)
	srv.Post("/admin/tours/:id/reset-completion", http.TourResetCompletionAction, adminConfig)

	srv.Post("/admin/tours/:id/steps", http.StepCreateAction, adminConfig)
	srv.Post("/admin/tours/:id/steps/:stepId", http.StepUpdateAction, adminConfig)
	srv.Post("/admin/tours/:id/steps/:stepId/delete", http.StepDeleteAction, adminConfig)
	srv.Post("/admin/tours/:id/steps/:stepId/move", http.StepMoveAction, adminConfig)

	srv.Get("/admin/statistics", http.StatisticsIndexAction, adminConfig)
	srv.Get("/admin/tours/:id/statistics", http.TourStatisticsPageAction, adminConfig)

	srv.Get("/admin/settings", http.SettingsPageAction, adminConfig)
	srv.Post("/admin/settings", http.SettingsFormAction, adminConfig)

	// === RECORDING API ROUTES ===
	srv.Post("/admin/api/recording/start", http.RecordingStartAction, adminConfig)
	srv.Post("/admin/api/recording/capture", http.RecordingCaptureAction, adminConfig)
	srv.Post("/admin/api/recording/click", http.RecordingClickAction, adminConfig)
	srv.Post("/admin/api/recording/navigation", http.RecordingNavigationAction, adminConfig)
	srv.Post("/admin/api/recording/pause", http.RecordingPauseAction, adminConfig)
	srv.Post("/admin/api/recording/resume", http.RecordingResumeAction, adminConfig)
	srv.Post("/admin/api/recording/discard", http.RecordingDiscardAction, adminConfig)
	srv.Post("/admin/api/recording/save", http.RecordingSaveAction, adminConfig)
	srv.Post("/admin/api/recording/bind", http.RecordingBindAction, adminConfig)
}
