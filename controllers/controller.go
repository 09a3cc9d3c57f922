package controller

import (
	"errors"
	"strconv"

	"econsensus/models"
	"econsensus/service"
	"econsensus/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

var (
	errForbidden = fiber.NewError(fiber.StatusForbidden, "You are not a member of this organization")
	errBadID     = fiber.NewError(fiber.StatusBadRequest, "Invalid id")
)

func currentUser(c *fiber.Ctx) *models.User {
	return c.Locals("user").(*models.User)
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || id == 0 {
		return 0, errBadID
	}
	return uint(id), nil
}

// respondError writes lookup and permission failures with their status
func respondError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return utils.ErrorResponse(c, fe.Code, fe.Message, nil)
	}
	return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Internal server error", err)
}

// respondSaveError maps a failed save. Delivery failures still answer 500,
// but the data has been committed by then.
func respondSaveError(c *fiber.Ctx, what string, err error) error {
	switch {
	case errors.Is(err, service.ErrNotification):
		return utils.ErrorResponse(c, fiber.StatusInternalServerError,
			what+" saved but notifications could not be delivered", err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Related record not found", err)
	default:
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to save "+what, err)
	}
}

func requireMember(db *gorm.DB, orgID, userID uint) error {
	ok, err := models.IsMember(db, orgID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return errForbidden
	}
	return nil
}

// findDecision loads the decision when the user belongs to its organization
func findDecision(db *gorm.DB, id, userID uint) (*models.Decision, error) {
	var decision models.Decision
	if err := db.Preload("Author").First(&decision, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Decision not found")
		}
		return nil, err
	}
	if err := requireMember(db, decision.OrganizationID, userID); err != nil {
		return nil, err
	}
	return &decision, nil
}

// findFeedback loads the feedback when the user belongs to the decision's organization
func findFeedback(db *gorm.DB, id, userID uint) (*models.Feedback, error) {
	var feedback models.Feedback
	if err := db.Preload("Decision").Preload("Author").First(&feedback, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Feedback not found")
		}
		return nil, err
	}
	if err := requireMember(db, feedback.Decision.OrganizationID, userID); err != nil {
		return nil, err
	}
	return &feedback, nil
}
