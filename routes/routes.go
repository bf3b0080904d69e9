package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"

	controller "nurtureflow/controllers"
	"nurtureflow/middleware"
	"nurtureflow/scheduler"
	"nurtureflow/sequence"
	"nurtureflow/store"
)

// Deps holds everything the route handlers need.
type Deps struct {
	DB           *gorm.DB
	Store        store.RecordStore
	Scheduler    scheduler.Scheduler
	Orchestrator *sequence.Orchestrator
}

func SetupRoutes(app *fiber.App, deps *Deps) {
	// Initialize Stripe
	controller.InitStripe()

	// Setup health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	intakeController := controller.NewIntakeController(deps.Orchestrator, log.New(os.Stdout, "INTAKE: ", log.LstdFlags))
	billingController := controller.NewBillingController(deps.Orchestrator, log.New(os.Stdout, "BILLING: ", log.LstdFlags))
	unsubscribeController := controller.NewUnsubscribeController(deps.Store, deps.Scheduler, log.New(os.Stdout, "UNSUB: ", log.LstdFlags))
	templateController := controller.NewTemplateController(deps.DB, log.New(os.Stdout, "TEMPLATE: ", log.LstdFlags))

	// Public intake endpoints, rate limited
	intake := app.Group("/intake", middleware.IntakeRateLimiter(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	intake.Post("/assessment", intakeController.AssessmentIntake)
	intake.Post("/no-show", intakeController.NoShowIntake)
	intake.Post("/call-outcome", intakeController.CallOutcomeIntake)
	intake.Post("/meeting-booked", intakeController.MeetingBookedIntake)

	// Payment webhook (Stripe signs its own requests, no JWT here)
	app.Post("/webhooks/stripe", billingController.HandleStripeWebhook)

	// Opt-out
	app.Post("/unsubscribe", unsubscribeController.Unsubscribe)

	// Operator routes (require a service JWT)
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	templates := api.Group("/templates")
	templates.Get("/", templateController.ListTemplates)
	templates.Get("/:name", templateController.GetTemplate)
	templates.Put("/", templateController.UpsertTemplate)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})

	log.Println("Routes initialized successfully")
}
