package controller

import (
	"errors"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"nurtureflow/sequence"
	"nurtureflow/utils"
)

type IntakeController struct {
	Orchestrator *sequence.Orchestrator
	Logger       *log.Logger
}

func NewIntakeController(orch *sequence.Orchestrator, logger *log.Logger) *IntakeController {
	return &IntakeController{
		Orchestrator: orch,
		Logger:       logger,
	}
}

// AssessmentIntake starts the primary nurture sequence after a completed
// business-health assessment. The assessment report email itself is sent by
// the upstream scoring system, which is why the payload must prove that
// message already went out.
func (ic *IntakeController) AssessmentIntake(c *fiber.Ctx) error {
	var input struct {
		Email        string `json:"email" validate:"required,email"`
		FirstName    string `json:"first_name" validate:"omitempty,max=100"`
		BusinessName string `json:"business_name" validate:"omitempty,max=200"`

		CriticalCount int `json:"critical_count" validate:"gte=0"`
		HighCount     int `json:"high_count" validate:"gte=0"`
		MediumCount   int `json:"medium_count" validate:"gte=0"`
		LowCount      int `json:"low_count" validate:"gte=0"`

		HealthScore   float64 `json:"health_score" validate:"gte=0"`
		RevenueAtRisk float64 `json:"revenue_at_risk" validate:"gte=0"`

		// Proof the upstream report email was delivered before we pile on.
		ReportStatus string     `json:"report_status" validate:"required,oneof=sent"`
		ReportSentAt *time.Time `json:"report_sent_at" validate:"required"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	req := sequence.StartRequest{
		Campaign:     &sequence.AssessmentNurture,
		Email:        input.Email,
		FirstName:    input.FirstName,
		BusinessName: input.BusinessName,
		Source:       "assessment",
		Counts: &sequence.SeverityCounts{
			Critical: input.CriticalCount,
			High:     input.HighCount,
			Medium:   input.MediumCount,
			Low:      input.LowCount,
		},
		HealthScore:   input.HealthScore,
		RevenueAtRisk: input.RevenueAtRisk,
		Variables: map[string]string{
			"health_score":    utils.FormatScore(input.HealthScore),
			"revenue_at_risk": utils.FormatMoney(input.RevenueAtRisk),
		},
	}

	return ic.respond(c, req)
}

// NoShowIntake starts the recovery sequence after a missed call.
func (ic *IntakeController) NoShowIntake(c *fiber.Ctx) error {
	var input struct {
		Email        string     `json:"email" validate:"required,email"`
		FirstName    string     `json:"first_name" validate:"omitempty,max=100"`
		BusinessName string     `json:"business_name" validate:"omitempty,max=200"`
		MissedAt     *time.Time `json:"missed_at" validate:"required"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	return ic.respond(c, sequence.StartRequest{
		Campaign:     &sequence.NoShowRecovery,
		Email:        input.Email,
		FirstName:    input.FirstName,
		BusinessName: input.BusinessName,
		Source:       "no-show",
	})
}

// CallOutcomeIntake starts the decision follow-up sequence after a call that
// ended in a "maybe".
func (ic *IntakeController) CallOutcomeIntake(c *fiber.Ctx) error {
	var input struct {
		Email        string `json:"email" validate:"required,email"`
		FirstName    string `json:"first_name" validate:"omitempty,max=100"`
		BusinessName string `json:"business_name" validate:"omitempty,max=200"`
		Outcome      string `json:"outcome" validate:"required,oneof=undecided maybe"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	return ic.respond(c, sequence.StartRequest{
		Campaign:     &sequence.DecisionFollowUp,
		Email:        input.Email,
		FirstName:    input.FirstName,
		BusinessName: input.BusinessName,
		Source:       "call-outcome",
	})
}

// MeetingBookedIntake schedules reminders ahead of a booked call. A meeting
// less than the minimum lead time away is reported as skipped, not an error.
func (ic *IntakeController) MeetingBookedIntake(c *fiber.Ctx) error {
	var input struct {
		Email           string     `json:"email" validate:"required,email"`
		FirstName       string     `json:"first_name" validate:"omitempty,max=100"`
		BusinessName    string     `json:"business_name" validate:"omitempty,max=200"`
		MeetingAt       *time.Time `json:"meeting_at" validate:"required"`
		MeetingLocation string     `json:"meeting_location" validate:"omitempty,max=300"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	vars := map[string]string{}
	if input.MeetingLocation != "" {
		vars["meeting_location"] = input.MeetingLocation
	}

	return ic.respond(c, sequence.StartRequest{
		Campaign:     &sequence.CallReminder,
		Email:        input.Email,
		FirstName:    input.FirstName,
		BusinessName: input.BusinessName,
		Source:       "booking",
		MeetingAt:    input.MeetingAt,
		Variables:    vars,
	})
}

func (ic *IntakeController) respond(c *fiber.Ctx, req sequence.StartRequest) error {
	outcome, err := ic.Orchestrator.Start(c.Context(), req)
	if err != nil {
		if errors.Is(err, sequence.ErrInvalidIntake) {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid intake payload", err)
		}
		ic.Logger.Printf("Orchestration failed for %s/%s: %v", req.Campaign.ID, req.Email, err)
		sentry.CaptureException(err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to start sequence", nil)
	}

	logrus.WithFields(logrus.Fields{
		"campaign":        req.Campaign.ID,
		"email":           req.Email,
		"status":          outcome.Status,
		"segment":         outcome.Segment,
		"steps_scheduled": outcome.StepsScheduled,
		"steps_failed":    outcome.StepsFailed,
	}).Info("Intake processed")

	return c.JSON(utils.SuccessResponse(outcome))
}
