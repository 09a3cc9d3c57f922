package controller

import (
	"errors"
	"log"

	"econsensus/models"
	"econsensus/service"
	"econsensus/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CommentRequest struct {
	Comment string `json:"comment" validate:"required"`
}

type CommentController struct {
	db       *gorm.DB
	comments *service.CommentService
	logger   *log.Logger
}

func NewCommentController(db *gorm.DB, comments *service.CommentService, logger *log.Logger) *CommentController {
	return &CommentController{
		db:       db,
		comments: comments,
		logger:   logger,
	}
}

func (cc *CommentController) GetComments(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	feedback, err := findFeedback(cc.db, id, currentUser(c).ID)
	if err != nil {
		return respondError(c, err)
	}

	var comments []models.Comment
	if err := cc.db.Preload("User").Where("feedback_id = ?", feedback.ID).Order("submit_date, id").Find(&comments).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch comments", err)
	}
	return c.JSON(utils.SuccessResponse(comments))
}

func (cc *CommentController) CreateComment(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	feedback, err := findFeedback(cc.db, id, user.ID)
	if err != nil {
		return respondError(c, err)
	}

	var req CommentRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	comment := models.Comment{
		FeedbackID: feedback.ID,
		UserID:     &user.ID,
		Comment:    req.Comment,
	}
	if err := cc.comments.Save(&comment); err != nil {
		return respondSaveError(c, "comment", err)
	}

	comment.User = user
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(comment))
}

// UpdateComment edits a comment. Only its author or a site admin may do so.
func (cc *CommentController) UpdateComment(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	var comment models.Comment
	if err := cc.db.First(&comment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Comment not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch comment", err)
	}
	if _, err := findFeedback(cc.db, comment.FeedbackID, user.ID); err != nil {
		return respondError(c, err)
	}
	if !user.IsAdmin && (comment.UserID == nil || *comment.UserID != user.ID) {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You can only edit your own comments", nil)
	}

	var req CommentRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	comment.Comment = req.Comment
	if err := cc.comments.Save(&comment); err != nil {
		return respondSaveError(c, "comment", err)
	}
	return c.JSON(utils.SuccessResponse(comment))
}
