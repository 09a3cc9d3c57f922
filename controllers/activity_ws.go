package controller

import (
	"log"

	"econsensus/models"
	"econsensus/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"
)

type ActivityController struct {
	db     *gorm.DB
	hub    *utils.ActivityHub
	logger *log.Logger
}

func NewActivityController(db *gorm.DB, hub *utils.ActivityHub, logger *log.Logger) *ActivityController {
	return &ActivityController{
		db:     db,
		hub:    hub,
		logger: logger,
	}
}

// RequireUpgrade rejects plain HTTP requests on the websocket route
func (ac *ActivityController) RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// HandleActivityWS streams save events of the caller's organizations until
// the client goes away.
func (ac *ActivityController) HandleActivityWS(c *websocket.Conn) {
	defer c.Close()

	user, ok := c.Locals("user").(*models.User)
	if !ok {
		return
	}

	var orgIDs []uint
	if err := ac.db.Model(&models.OrganizationUser{}).
		Where("user_id = ?", user.ID).
		Pluck("organization_id", &orgIDs).Error; err != nil {
		ac.logger.Printf("Error loading organizations of user %d: %v", user.ID, err)
		return
	}

	events, cancel := ac.hub.Subscribe(orgIDs...)
	defer cancel()

	// The reader notices the client closing the connection
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event := <-events:
			if err := c.WriteJSON(event); err != nil {
				ac.logger.Printf("Error writing activity to user %d: %v", user.ID, err)
				return
			}
		case <-closed:
			return
		}
	}
}
