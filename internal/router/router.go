// Package router assembles the Fiber application and its route table.
package router

import (
	"strings"

	"wasteportal-backend/internal/admin"
	"wasteportal-backend/internal/audit"
	"wasteportal-backend/internal/auth"
	"wasteportal-backend/internal/config"
	"wasteportal-backend/internal/dashboard"
	"wasteportal-backend/internal/database"
	"wasteportal-backend/internal/logging"
	"wasteportal-backend/internal/models"
	"wasteportal-backend/internal/notify"
	"wasteportal-backend/internal/review"
	"wasteportal-backend/internal/storage"
	"wasteportal-backend/internal/submission"
	"wasteportal-backend/internal/summary"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
)

type Deps struct {
	Config   *config.Config
	Logger   *zap.Logger
	Store    storage.Store
	Notifier notify.Notifier
}

// ErrorHandler renders {"error": message}. Errors that are not *fiber.Error are logged and hidden.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if e, ok := err.(*fiber.Error); ok {
			return c.Status(e.Code).JSON(fiber.Map{"error": e.Message})
		}
		logger.Error("unexpected error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "unexpected server error"})
	}
}

func corsOrigins(raw string) string {
	origins := strings.Split(raw, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return strings.Join(origins, ",")
}

func New(d Deps) *fiber.App {
	cfg, logger := d.Config, d.Logger

	app := fiber.New(fiber.Config{
		AppName:      "wasteportal",
		BodyLimit:    cfg.BodyLimit(),
		ErrorHandler: ErrorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logging.Middleware(logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins: corsOrigins(cfg.CORSOrigins),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if err := database.Ping(database.DB); err != nil {
			logger.Warn("health check failed", zap.Error(err))
			return fiber.NewError(fiber.StatusServiceUnavailable, "database unavailable")
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/bootstrap-admin", auth.BootstrapAdminHandler())
	api.Post("/auth/login", auth.LoginHandler(cfg))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Get("/auth/me", auth.MeHandler())
	protected.Put("/auth/password", auth.ChangePasswordHandler())
	protected.Get("/facilities", admin.ListFacilitiesHandler())

	supervisor := auth.RequireRole(models.RoleSupervisor)
	reviewerOrAdmin := auth.RequireRole(models.RolePHO, models.RoleAdmin)

	// Supervisor data entry
	protected.Post("/submissions/mess", supervisor, submission.CreateHandler(models.KindMessWaste, cfg, d.Store))
	protected.Post("/submissions/hostel", supervisor, submission.CreateHandler(models.KindHostelWaste, cfg, d.Store))
	protected.Get("/submissions/mine", supervisor, submission.ListMineHandler())
	protected.Get("/submissions/mine/export", supervisor, submission.ExportMineHandler())

	// Shared reads, facility-checked inside the handlers
	protected.Get("/submissions/:kind/:id", submission.GetHandler())
	protected.Get("/images/:id", submission.ImageHandler(d.Store))

	// Review
	reviewRoutes := protected.Group("/review")
	reviewRoutes.Use(auth.RequireRole(models.RolePHO))
	reviewRoutes.Get("/pending", review.PendingHandler())
	reviewRoutes.Post("/hostel/verify-batch", review.VerifyBatchHandler(d.Notifier, logger))
	reviewRoutes.Post("/:kind/:id/verify", review.VerifyHandler(d.Notifier, logger))
	reviewRoutes.Post("/:kind/:id/reject", review.RejectHandler(d.Notifier, logger))
	reviewRoutes.Put("/:kind/:id", review.EditHandler(d.Notifier, logger))

	// Summaries, analytics and edit history
	protected.Get("/summaries", reviewerOrAdmin, summary.ListSummariesHandler())
	protected.Get("/edits", reviewerOrAdmin, audit.EditHistoryHandler(cfg))

	dash := protected.Group("/dashboard")
	dash.Use(reviewerOrAdmin)
	dash.Get("/kpis", dashboard.KPIsHandler(cfg))
	dash.Get("/trend", dashboard.TrendHandler(cfg))
	dash.Get("/categories", dashboard.CategoriesHandler(cfg))
	dash.Get("/stats", dashboard.StatsHandler(cfg))
	dash.Get("/charts", dashboard.ChartsHandler(cfg))

	// Admin
	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(auth.RequireRole(models.RoleAdmin))

	adminRoutes.Get("/summaries/export", summary.ExportSummariesHandler())
	adminRoutes.Get("/edits/export", audit.ExportEditsHandler(cfg))
	adminRoutes.Get("/audit-logs", audit.ListAuditLogsHandler())

	adminRoutes.Post("/facilities", admin.CreateFacilityHandler())
	adminRoutes.Get("/facilities", admin.ListFacilitiesHandler())
	adminRoutes.Get("/facilities/:id", admin.GetFacilityHandler())
	adminRoutes.Put("/facilities/:id", admin.UpdateFacilityHandler())
	adminRoutes.Delete("/facilities/:id", admin.DeleteFacilityHandler())

	adminRoutes.Get("/users", admin.ListUsersHandler())
	adminRoutes.Post("/users", admin.CreateUserHandler())
	adminRoutes.Delete("/users/:id", admin.DeleteUserHandler())
	adminRoutes.Put("/users/:id/password", admin.ResetPasswordHandler())

	adminRoutes.Get("/storage", admin.StorageUsageHandler(cfg, d.Store, logger))
	adminRoutes.Get("/storage/:bucket/archive", admin.ArchiveBucketHandler(cfg, d.Store, logger))
	adminRoutes.Delete("/storage/:bucket", admin.ClearBucketHandler(cfg, d.Store, logger))

	return app
}
