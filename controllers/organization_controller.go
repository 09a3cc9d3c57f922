package controller

import (
	"errors"
	"log"
	"regexp"
	"strings"

	"econsensus/models"
	"econsensus/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

type CreateOrganizationRequest struct {
	Name string `json:"name" validate:"required,max=200"`
	Slug string `json:"slug" validate:"required,max=200"`
}

type AddMemberRequest struct {
	Username string `json:"username" validate:"required"`
	IsAdmin  bool   `json:"is_admin"`
}

type NotificationLevelRequest struct {
	Level *int `json:"level" validate:"required,notificationlevel"`
}

type OrganizationController struct {
	db     *gorm.DB
	logger *log.Logger
}

func NewOrganizationController(db *gorm.DB, logger *log.Logger) *OrganizationController {
	return &OrganizationController{
		db:     db,
		logger: logger,
	}
}

// CreateOrganization creates the organization with the caller as its admin
func (oc *OrganizationController) CreateOrganization(c *fiber.Ctx) error {
	user := currentUser(c)

	var req CreateOrganizationRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	req.Slug = strings.ToLower(strings.TrimSpace(req.Slug))
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if !slugPattern.MatchString(req.Slug) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Slug may only contain lowercase letters, digits and dashes", nil)
	}

	org := models.Organization{Name: req.Name, Slug: req.Slug, IsActive: true}
	err := oc.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Organization{}).Where("slug = ?", org.Slug).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fiber.NewError(fiber.StatusConflict, "Slug already taken")
		}
		if err := tx.Create(&org).Error; err != nil {
			return err
		}
		return tx.Create(&models.OrganizationUser{
			OrganizationID: org.ID,
			UserID:         user.ID,
			IsAdmin:        true,
		}).Error
	})
	if err != nil {
		return respondError(c, err)
	}

	oc.logger.Printf("User %d created organization %s", user.ID, org.Slug)
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(org))
}

// GetOrganizations lists the caller's organizations
func (oc *OrganizationController) GetOrganizations(c *fiber.Ctx) error {
	user := currentUser(c)

	var orgs []models.Organization
	err := oc.db.
		Joins("JOIN organization_users ON organization_users.organization_id = organizations.id AND organization_users.deleted_at IS NULL").
		Where("organization_users.user_id = ?", user.ID).
		Order("organizations.name").
		Find(&orgs).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch organizations", err)
	}
	return c.JSON(utils.SuccessResponse(orgs))
}

// AddMember adds an existing user to the organization. Organization admins only.
func (oc *OrganizationController) AddMember(c *fiber.Ctx) error {
	org, err := oc.adminOrganization(c)
	if err != nil {
		return respondError(c, err)
	}

	var req AddMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var member models.User
	if err := oc.db.Where("username = ?", req.Username).First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "User not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch user", err)
	}

	ok, err := models.IsMember(oc.db, org.ID, member.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check membership", err)
	}
	if ok {
		return utils.ErrorResponse(c, fiber.StatusConflict, "User is already a member", nil)
	}

	membership := models.OrganizationUser{OrganizationID: org.ID, UserID: member.ID, IsAdmin: req.IsAdmin}
	if err := oc.db.Create(&membership).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to add member", err)
	}
	membership.User = member
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(membership))
}

// GetOrganizationSettings returns the organization's default notification level
func (oc *OrganizationController) GetOrganizationSettings(c *fiber.Ctx) error {
	orgID, err := paramID(c, "orgID")
	if err != nil {
		return respondError(c, err)
	}
	if err := requireMember(oc.db, orgID, currentUser(c).ID); err != nil {
		return respondError(c, err)
	}

	level := models.MainItemsNotificationsOnly
	var settings models.OrganizationSettings
	err = oc.db.Where("organization_id = ?", orgID).First(&settings).Error
	switch {
	case err == nil:
		level = settings.DefaultNotificationLevel
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch settings", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"default_notification_level": level,
		"levels":                     models.NotificationLevels,
		"help_text":                  models.NotificationLevelHelp,
	}))
}

// UpdateOrganizationSettings stores the default level. Organization admins only.
func (oc *OrganizationController) UpdateOrganizationSettings(c *fiber.Ctx) error {
	org, err := oc.adminOrganization(c)
	if err != nil {
		return respondError(c, err)
	}

	var req NotificationLevelRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	settings := models.OrganizationSettings{OrganizationID: org.ID}
	err = oc.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("organization_id = ?", org.ID).FirstOrCreate(&settings).Error; err != nil {
			return err
		}
		settings.DefaultNotificationLevel = *req.Level
		return tx.Model(&settings).Update("default_notification_level", *req.Level).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to save settings", err)
	}
	return c.JSON(utils.SuccessResponse(settings))
}

func (oc *OrganizationController) adminOrganization(c *fiber.Ctx) (*models.Organization, error) {
	orgID, err := paramID(c, "orgID")
	if err != nil {
		return nil, err
	}

	var org models.Organization
	if err := oc.db.First(&org, orgID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Organization not found")
		}
		return nil, err
	}

	user := currentUser(c)
	if user.IsAdmin {
		return &org, nil
	}
	var membership models.OrganizationUser
	err = oc.db.Where("organization_id = ? AND user_id = ?", org.ID, user.ID).First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !membership.IsAdmin) {
		return nil, fiber.NewError(fiber.StatusForbidden, "Organization admin access required")
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}
