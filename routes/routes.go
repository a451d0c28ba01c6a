package routes

import (
	"time"

	"dripcrm/config"
	controller "dripcrm/controllers"
	"dripcrm/middleware"
	"dripcrm/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Dependencies are the shared services the HTTP layer needs. LimiterStorage
// may be nil to keep rate limit counters in memory.
type Dependencies struct {
	DB             *gorm.DB
	Config         *config.Config
	Processor      worker.BatchProcessor
	LimiterStorage fiber.Storage
	Logger         *logrus.Entry
}

// NewApp builds the fiber app with middleware and every route registered.
func NewApp(deps Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "dripcrm",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	})

	app.Use(recover.New())
	app.Use(middleware.CORS(deps.Config.BaseURL))
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	SetupRoutes(app, deps)
	return app
}

func SetupSequenceRoutes(app *fiber.App, deps Dependencies) {
	log := deps.Logger
	sequenceController := controller.NewSequenceController(deps.DB, log.WithField("controller", "sequence"))
	enrollmentController := controller.NewEnrollmentController(deps.DB, log.WithField("controller", "enrollment"))
	processController := controller.NewProcessController(deps.Processor, log.WithField("controller", "process"))
	statsController := controller.NewStatsController(deps.DB, log.WithField("controller", "stats"))

	cronAuth := middleware.BearerSecret(deps.Config.CronSecret)
	adminAuth := middleware.BearerSecret(deps.Config.AdminAPIToken)

	// Registered before /:id so "process" is never read as an id
	sequences := app.Group("/api/sequences")
	sequences.Post("/process", cronAuth, processController.ProcessSequences)
	sequences.Get("/process", cronAuth, processController.ProcessSequences)

	sequences.Post("/conversions", adminAuth, enrollmentController.MarkConversion)

	sequences.Post("/", adminAuth, sequenceController.CreateSequence)
	sequences.Get("/", adminAuth, sequenceController.GetSequences)
	sequences.Get("/:id", adminAuth, sequenceController.GetSequence)
	sequences.Get("/:id/stats", adminAuth, statsController.GetSequenceStats)
	sequences.Put("/:id/status", adminAuth, sequenceController.UpdateSequenceStatus)
	sequences.Post("/:id/steps", adminAuth, sequenceController.AddStep)
	sequences.Put("/:id/steps/:order", adminAuth, sequenceController.UpdateStep)

	sequences.Post("/:id/enroll", adminAuth, enrollmentController.EnrollLeads)
	sequences.Get("/:id/enrollments", adminAuth, enrollmentController.GetEnrollments)

	log.Info("Sequence routes initialized successfully")
}

func SetupLeadRoutes(app *fiber.App, deps Dependencies) {
	leadController := controller.NewLeadController(deps.DB, deps.Logger.WithField("controller", "lead"))

	leads := app.Group("/api/leads", middleware.BearerSecret(deps.Config.AdminAPIToken))
	leads.Post("/", leadController.CreateLead)
	leads.Get("/", leadController.GetLeads)
	leads.Post("/import", leadController.ImportLeads)
	leads.Get("/:id", leadController.GetLead)
	leads.Put("/:id", leadController.UpdateLead)
}

func SetupPublicRoutes(app *fiber.App, deps Dependencies) {
	log := deps.Logger
	webhookController := controller.NewWebhookController(deps.DB, log.WithField("controller", "webhook"))
	unsubscribeController := controller.NewUnsubscribeController(deps.DB, log.WithField("controller", "unsubscribe"))

	// Feedback events write the bounce and unsubscribe registries
	webhooks := app.Group("/api/webhooks",
		middleware.WebhookRateLimiter(deps.Config.WebhookLimit, deps.LimiterStorage),
		middleware.BearerSecret(deps.Config.WebhookSecret),
	)
	webhooks.Post("/email", webhookController.HandleEmailEvent)

	app.Get("/unsubscribe", unsubscribeController.Unsubscribe)
	app.Post("/unsubscribe", unsubscribeController.Unsubscribe)
}

func SetupRoutes(app *fiber.App, deps Dependencies) {
	if deps.Logger == nil {
		deps.Logger = logrus.NewEntry(logrus.StandardLogger())
	}

	// Setup health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	SetupSequenceRoutes(app, deps)
	SetupLeadRoutes(app, deps)
	SetupPublicRoutes(app, deps)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
