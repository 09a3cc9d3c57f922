package controller

import (
	"log"

	"econsensus/models"
	"econsensus/service"
	"econsensus/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// FeedbackRequest is the feedback payload. The decision comes from the URL.
type FeedbackRequest struct {
	Description *string `json:"description"`
	Rating      *int    `json:"rating" validate:"omitempty,rating"`
	Resolved    *bool   `json:"resolved"`
	MinorEdit   bool    `json:"minor_edit"`
}

type FeedbackResponse struct {
	*models.Feedback
	RatingLabel string `json:"rating_label"`
	AuthorName  string `json:"author_name"`
}

type FeedbackController struct {
	db       *gorm.DB
	feedback *service.FeedbackService
	logger   *log.Logger
}

func NewFeedbackController(db *gorm.DB, feedback *service.FeedbackService, logger *log.Logger) *FeedbackController {
	return &FeedbackController{
		db:       db,
		feedback: feedback,
		logger:   logger,
	}
}

func feedbackResponse(fb *models.Feedback) FeedbackResponse {
	return FeedbackResponse{
		Feedback:    fb,
		RatingLabel: fb.RatingLabel(),
		AuthorName:  fb.AuthorName(),
	}
}

// GetFeedbackList lists the feedback of a decision
func (fc *FeedbackController) GetFeedbackList(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	decision, err := findDecision(fc.db, id, currentUser(c).ID)
	if err != nil {
		return respondError(c, err)
	}

	query := fc.db.Preload("Author").Where("decision_id = ?", decision.ID)
	if rating := c.Query("rating"); rating != "" {
		value, ok := models.ParseRating(rating)
		if !ok {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown rating "+rating, nil)
		}
		query = query.Where("rating = ?", value)
	}

	var feedback []models.Feedback
	if err := query.Order("id").Find(&feedback).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch feedback", err)
	}

	items := make([]FeedbackResponse, len(feedback))
	for i := range feedback {
		items[i] = feedbackResponse(&feedback[i])
	}
	return c.JSON(utils.SuccessResponse(items))
}

func (fc *FeedbackController) CreateFeedback(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	decision, err := findDecision(fc.db, id, user.ID)
	if err != nil {
		return respondError(c, err)
	}

	var req FeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	feedback := models.Feedback{
		DecisionID:  decision.ID,
		Description: req.Description,
		Rating:      models.CommentRating,
		AuthorID:    &user.ID,
		EditorID:    &user.ID,
	}
	if req.Rating != nil {
		feedback.Rating = *req.Rating
	}
	if req.Resolved != nil {
		feedback.Resolved = *req.Resolved
	}

	if err := fc.feedback.Save(&feedback); err != nil {
		return respondSaveError(c, "feedback", err)
	}

	feedback.Author = user
	fc.logger.Printf("User %d added %s feedback %d to decision %d", user.ID, feedback.RatingLabel(), feedback.ID, decision.ID)
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(feedbackResponse(&feedback)))
}

func (fc *FeedbackController) GetFeedback(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	feedback, err := findFeedback(fc.db, id, currentUser(c).ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(feedbackResponse(feedback)))
}

// UpdateFeedback edits the feedback. minor_edit only suppresses notifications
// when the caller wrote the feedback.
func (fc *FeedbackController) UpdateFeedback(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	feedback, err := findFeedback(fc.db, id, user.ID)
	if err != nil {
		return respondError(c, err)
	}

	var req FeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if req.Description != nil {
		feedback.Description = req.Description
	}
	if req.Rating != nil {
		feedback.Rating = *req.Rating
	}
	if req.Resolved != nil {
		feedback.Resolved = *req.Resolved
	}
	feedback.EditorID = &user.ID
	feedback.MinorEdit = req.MinorEdit

	if err := fc.feedback.Save(feedback); err != nil {
		return respondSaveError(c, "feedback", err)
	}
	return c.JSON(utils.SuccessResponse(feedbackResponse(feedback)))
}
