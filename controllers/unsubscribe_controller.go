package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"nurtureflow/scheduler"
	"nurtureflow/store"
	"nurtureflow/utils"
)

type UnsubscribeController struct {
	Store     store.RecordStore
	Scheduler scheduler.Scheduler
	Logger    *log.Logger
}

func NewUnsubscribeController(recordStore store.RecordStore, sched scheduler.Scheduler, logger *log.Logger) *UnsubscribeController {
	return &UnsubscribeController{
		Store:     recordStore,
		Scheduler: sched,
		Logger:    logger,
	}
}

// Unsubscribe suppresses the contact and cancels every pending future step.
// Already-sent steps stay recorded; only the not-yet-fired jobs go away.
func (uc *UnsubscribeController) Unsubscribe(c *fiber.Ctx) error {
	var input struct {
		Email string `json:"email" validate:"required,email"`

		// Campaign identifies which campaign's email carried the opt-out
		// link. Suppression is global either way; this is audit context.
		Campaign string `json:"campaign" validate:"omitempty,max=100"`
		Reason   string `json:"reason" validate:"omitempty,max=500"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if err := uc.Store.MarkUnsubscribed(c.Context(), input.Email, input.Campaign, input.Reason, c.IP(), c.Get("User-Agent")); err != nil {
		uc.Logger.Printf("Failed to unsubscribe %s: %v", input.Email, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to unsubscribe", nil)
	}

	canceled, err := uc.Scheduler.CancelPending(c.Context(), input.Email)
	if err != nil {
		// The suppression flag alone is enough to stop sends; cancellation
		// is cleanup.
		uc.Logger.Printf("Failed to cancel pending jobs for %s: %v", input.Email, err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"email":         input.Email,
		"jobs_canceled": canceled,
	}))
}
