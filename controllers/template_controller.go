package controller

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"nurtureflow/models"
	"nurtureflow/utils"
)

type TemplateController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewTemplateController(db *gorm.DB, logger *log.Logger) *TemplateController {
	return &TemplateController{
		DB:     db,
		Logger: logger,
	}
}

func (tc *TemplateController) ListTemplates(c *fiber.Ctx) error {
	var templates []models.EmailTemplate
	query := tc.DB
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}
	if err := query.Order("name asc").Find(&templates).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list templates", nil)
	}
	return c.JSON(utils.SuccessResponse(templates))
}

func (tc *TemplateController) GetTemplate(c *fiber.Ctx) error {
	name := c.Params("name")

	var tmpl models.EmailTemplate
	err := tc.DB.Where("name = ?", name).First(&tmpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Template not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load template", nil)
	}
	return c.JSON(utils.SuccessResponse(tmpl))
}

// UpsertTemplate lets operators fix a broken template in place. A step that
// hard-failed on the old template can then be completed by re-triggering it;
// the step was never marked sent.
func (tc *TemplateController) UpsertTemplate(c *fiber.Ctx) error {
	var input struct {
		Name        string `json:"name" validate:"required,max=200"`
		Subject     string `json:"subject" validate:"required"`
		HTMLContent string `json:"html_content" validate:"required"`
		Category    string `json:"category" validate:"omitempty,max=100"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var tmpl models.EmailTemplate
	err := tc.DB.Where("name = ?", input.Name).First(&tmpl).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		tmpl = models.EmailTemplate{
			Name:        input.Name,
			Subject:     input.Subject,
			HTMLContent: input.HTMLContent,
			Category:    input.Category,
		}
		if err := tc.DB.Create(&tmpl).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create template", nil)
		}
	case err != nil:
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load template", nil)
	default:
		tmpl.Subject = input.Subject
		tmpl.HTMLContent = input.HTMLContent
		tmpl.Category = input.Category
		if err := tc.DB.Save(&tmpl).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update template", nil)
		}
	}

	tc.Logger.Printf("Template %s upserted by %v", tmpl.Name, c.Locals("service"))
	return c.JSON(utils.SuccessResponse(tmpl))
}
