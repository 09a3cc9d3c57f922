package controller

import (
	"log"

	"econsensus/config"
	"econsensus/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type PostByEmailRequest struct {
	Username   string  `json:"username"`
	Password   *string `json:"password"`
	Server     string  `json:"server" validate:"omitempty,hostname|ip"`
	Port       int     `json:"port" validate:"omitempty,min=1,max=65535"`
	SSLEnabled bool    `json:"ssl_enabled"`
}

type SettingsController struct {
	db     *gorm.DB
	logger *log.Logger
}

func NewSettingsController(db *gorm.DB, logger *log.Logger) *SettingsController {
	return &SettingsController{
		db:     db,
		logger: logger,
	}
}

// GetPostByEmail returns the mailbox settings without the password
func (sc *SettingsController) GetPostByEmail(c *fiber.Ctx) error {
	settings, err := utils.LoadPostByEmail(sc.db)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load settings", err)
	}

	passwordSet := settings.Password != ""
	settings.Password = ""
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"group":        config.PostByEmailGroup,
		"values":       settings,
		"password_set": passwordSet,
	}))
}

// UpdatePostByEmail stores the mailbox settings. Omitting the password keeps
// the stored one.
func (sc *SettingsController) UpdatePostByEmail(c *fiber.Ctx) error {
	var req PostByEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	settings := utils.PostByEmailSettings{
		Username:   req.Username,
		Server:     req.Server,
		Port:       req.Port,
		SSLEnabled: req.SSLEnabled,
	}
	if req.Password != nil {
		settings.Password = *req.Password
	} else {
		current, err := utils.LoadPostByEmail(sc.db)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load settings", err)
		}
		settings.Password = current.Password
	}

	if err := utils.SavePostByEmail(sc.db, &settings); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Failed to save settings", err)
	}

	utils.LogEvent("post_by_email_configured", map[string]interface{}{
		"server":      settings.Server,
		"ssl_enabled": settings.SSLEnabled,
		"user_id":     currentUser(c).ID,
	})
	settings.Password = ""
	return c.JSON(utils.SuccessResponse(settings))
}
