package controller

import (
	"errors"
	"log"

	"econsensus/models"
	"econsensus/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type NotificationController struct {
	db     *gorm.DB
	logger *log.Logger
}

func NewNotificationController(db *gorm.DB, logger *log.Logger) *NotificationController {
	return &NotificationController{
		db:     db,
		logger: logger,
	}
}

// GetNotificationSettings returns the caller's level in the organization
// and whether it is inherited from the organization default.
func (nc *NotificationController) GetNotificationSettings(c *fiber.Ctx) error {
	user := currentUser(c)
	orgID, err := paramID(c, "orgID")
	if err != nil {
		return respondError(c, err)
	}
	if err := requireMember(nc.db, orgID, user.ID); err != nil {
		return respondError(c, err)
	}

	level, err := models.EffectiveNotificationLevel(nc.db, user.ID, orgID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch settings", err)
	}
	var count int64
	if err := nc.db.Model(&models.NotificationSettings{}).
		Where("user_id = ? AND organization_id = ?", user.ID, orgID).
		Count(&count).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch settings", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"notification_level": level,
		"inherited":          count == 0,
		"levels":             models.NotificationLevels,
		"help_text":          models.NotificationLevelHelp,
	}))
}

func (nc *NotificationController) UpdateNotificationSettings(c *fiber.Ctx) error {
	user := currentUser(c)
	orgID, err := paramID(c, "orgID")
	if err != nil {
		return respondError(c, err)
	}
	if err := requireMember(nc.db, orgID, user.ID); err != nil {
		return respondError(c, err)
	}

	var req NotificationLevelRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	settings := models.NotificationSettings{UserID: user.ID, OrganizationID: orgID}
	err = nc.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND organization_id = ?", user.ID, orgID).
			Attrs(models.NotificationSettings{NotificationLevel: *req.Level}).
			FirstOrCreate(&settings).Error; err != nil {
			return err
		}
		settings.NotificationLevel = *req.Level
		return tx.Model(&settings).Update("notification_level", *req.Level).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to save settings", err)
	}
	return c.JSON(utils.SuccessResponse(settings))
}

// GetNotices lists the caller's stored notices, newest first.
// Query: unseen=true limits to unseen notices.
func (nc *NotificationController) GetNotices(c *fiber.Ctx) error {
	user := currentUser(c)
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	unseen := c.QueryBool("unseen")
	scope := func() *gorm.DB {
		query := nc.db.Model(&models.Notice{}).Where("recipient_id = ?", user.ID)
		if unseen {
			query = query.Where("unseen = ?", true)
		}
		return query
	}

	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count notices", err)
	}

	var notices []models.Notice
	if err := scope().Preload("NoticeType").
		Order("created_at DESC, id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&notices).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch notices", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  notices,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

func (nc *NotificationController) MarkNoticeSeen(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	var notice models.Notice
	if err := nc.db.Where("id = ? AND recipient_id = ?", id, user.ID).First(&notice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Notice not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch notice", err)
	}
	if err := notice.MarkSeen(nc.db); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update notice", err)
	}
	return c.JSON(utils.SuccessResponse(notice))
}
