package controller

import (
	"encoding/json"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"nurtureflow/config"
	"nurtureflow/sequence"
	"nurtureflow/utils"
)

type BillingController struct {
	Orchestrator *sequence.Orchestrator
	Logger       *log.Logger
}

func NewBillingController(orch *sequence.Orchestrator, logger *log.Logger) *BillingController {
	return &BillingController{
		Orchestrator: orch,
		Logger:       logger,
	}
}

// InitStripe configures the Stripe client
func InitStripe() {
	stripe.Key = config.AppConfig.StripeSecretKey
}

// HandleStripeWebhook turns a completed checkout into the client-onboarding
// sequence. The webhook is the payment "intake event"; Stripe retries
// delivery, so the sequence-level and per-step idempotency checks both apply
// here.
func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	payload := c.Body()

	signature := c.Get("Stripe-Signature")
	if signature == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Missing Stripe-Signature header", nil)
	}

	event, err := webhook.ConstructEventWithTolerance(
		payload,
		signature,
		config.AppConfig.StripeWebhookSecret,
		5*time.Minute, // tolerance for clock drift
	)
	if err != nil {
		bc.Logger.Printf("Failed to verify webhook signature: %v", err)
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid webhook signature", nil)
	}

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid webhook payload", err)
		}
		if session.CustomerDetails == nil || session.CustomerDetails.Email == "" {
			bc.Logger.Printf("Checkout session %s has no customer email, skipping onboarding", session.ID)
			return c.JSON(fiber.Map{"received": true})
		}

		outcome, err := bc.Orchestrator.Start(c.Context(), sequence.StartRequest{
			Campaign:  &sequence.ClientOnboarding,
			Email:     session.CustomerDetails.Email,
			FirstName: session.CustomerDetails.Name,
			Source:    "payment",
		})
		if err != nil {
			bc.Logger.Printf("Failed to start onboarding for %s: %v", session.CustomerDetails.Email, err)
			sentry.CaptureException(err)
			// Still acknowledge: Stripe retries are not the fix for an
			// internal orchestration failure.
			return c.JSON(fiber.Map{"received": true, "onboarding": "failed"})
		}

		logrus.WithFields(logrus.Fields{
			"event_id": event.ID,
			"email":    session.CustomerDetails.Email,
			"status":   outcome.Status,
		}).Info("Onboarding sequence triggered from checkout")

	default:
		bc.Logger.Printf("Ignoring Stripe event type %s", event.Type)
	}

	return c.JSON(fiber.Map{"received": true})
}
