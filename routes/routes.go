package routes

import (
	"log"
	"os"

	controller "econsensus/controllers"
	"econsensus/middleware"
	"econsensus/service"
	"econsensus/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"
)

func requestLogger() fiber.Handler {
	return logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	})
}

func SetupAuthRoutes(app *fiber.App, db *gorm.DB) {
	authLogger := log.New(os.Stdout, "AUTH: ", log.Ldate|log.Ltime|log.Lshortfile)
	authController := controller.NewAuthController(db, authLogger)

	auth := app.Group("/auth", requestLogger())

	// Public auth endpoints
	auth.Post("/register", authController.Register)
	auth.Post("/login", authController.Login)

	// Protected auth endpoints
	protectedAuth := auth.Group("", middleware.Protected(db))
	protectedAuth.Post("/logout", authController.Logout)
	protectedAuth.Get("/me", authController.GetCurrentUser)

	authLogger.Println("Authentication routes initialized successfully")
}

func SetupAPIRoutes(app *fiber.App, db *gorm.DB, services *service.Services, hub *utils.ActivityHub) {
	organizationController := controller.NewOrganizationController(db, log.New(os.Stdout, "ORGANIZATION: ", log.LstdFlags))
	decisionController := controller.NewDecisionController(db, services.Decisions, log.New(os.Stdout, "DECISION: ", log.LstdFlags))
	feedbackController := controller.NewFeedbackController(db, services.Feedback, log.New(os.Stdout, "FEEDBACK: ", log.LstdFlags))
	commentController := controller.NewCommentController(db, services.Comments, log.New(os.Stdout, "COMMENT: ", log.LstdFlags))
	notificationController := controller.NewNotificationController(db, log.New(os.Stdout, "NOTIFICATION: ", log.LstdFlags))
	settingsController := controller.NewSettingsController(db, log.New(os.Stdout, "SETTINGS: ", log.LstdFlags))
	activityController := controller.NewActivityController(db, hub, log.New(os.Stdout, "ACTIVITY: ", log.LstdFlags))

	api := app.Group("/api/v1", middleware.Protected(db), requestLogger(), middleware.WriteRateLimiter())

	// Organization routes
	org := api.Group("/organizations")
	org.Post("/", organizationController.CreateOrganization)
	org.Get("/", organizationController.GetOrganizations)
	org.Post("/:orgID/members", organizationController.AddMember)
	org.Get("/:orgID/settings", organizationController.GetOrganizationSettings)
	org.Put("/:orgID/settings", organizationController.UpdateOrganizationSettings)
	org.Get("/:orgID/notification-settings", notificationController.GetNotificationSettings)
	org.Put("/:orgID/notification-settings", notificationController.UpdateNotificationSettings)
	org.Get("/:orgID/decisions", decisionController.GetDecisions)
	org.Post("/:orgID/decisions", decisionController.CreateDecision)

	// Decision routes
	decision := api.Group("/decisions")
	decision.Get("/:id", decisionController.GetDecision)
	decision.Put("/:id", decisionController.UpdateDecision)
	decision.Post("/:id/watch", decisionController.WatchDecision)
	decision.Delete("/:id/watch", decisionController.UnwatchDecision)
	decision.Get("/:id/feedback", feedbackController.GetFeedbackList)
	decision.Post("/:id/feedback", feedbackController.CreateFeedback)

	// Feedback routes
	feedback := api.Group("/feedback")
	feedback.Get("/:id", feedbackController.GetFeedback)
	feedback.Put("/:id", feedbackController.UpdateFeedback)
	feedback.Get("/:id/comments", commentController.GetComments)
	feedback.Post("/:id/comments", commentController.CreateComment)

	api.Put("/comments/:id", commentController.UpdateComment)

	// Notice routes
	notices := api.Group("/notices")
	notices.Get("/", notificationController.GetNotices)
	notices.Put("/:id/seen", notificationController.MarkNoticeSeen)

	// Site settings, admins only
	settings := api.Group("/settings", middleware.AdminOnly())
	settings.Get("/post-by-email", settingsController.GetPostByEmail)
	settings.Put("/post-by-email", settingsController.UpdatePostByEmail)

	// WebSocket route for organization activity
	app.Get("/ws/activity",
		middleware.Protected(db),
		activityController.RequireUpgrade,
		websocket.New(activityController.HandleActivityWS),
	)

	log.Println("API routes initialized successfully")
}

func SetupRoutes(app *fiber.App, db *gorm.DB, services *service.Services, hub *utils.ActivityHub) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	SetupAuthRoutes(app, db)
	SetupAPIRoutes(app, db, services, hub)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
