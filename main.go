package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"econsensus/config"
	"econsensus/middleware"
	"econsensus/routes"
	"econsensus/service"
	"econsensus/utils"
	"econsensus/worker"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
)

func main() {
	logger := log.New(os.Stdout, "ECONSENSUS: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Failed to initialize Sentry: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	mailer := utils.NewSMTPMailer(
		config.AppConfig.SMTPHost,
		config.AppConfig.SMTPPort,
		config.AppConfig.SMTPUsername,
		config.AppConfig.SMTPPassword,
		log.New(os.Stdout, "MAILER: ", log.LstdFlags),
	)
	notifier := utils.NewNotifier(config.DB, mailer, config.AppConfig.SiteDomain, log.New(os.Stdout, "NOTIFIER: ", log.LstdFlags))
	hub := utils.NewActivityHub()
	services := service.New(service.Options{
		DB:               config.DB,
		Notifier:         notifier,
		Activity:         hub,
		DefaultFromEmail: config.AppConfig.DefaultFromEmail,
		Logger:           log.New(os.Stdout, "SERVICE: ", log.LstdFlags),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mailWorker := worker.NewMailWorker(
		config.DB,
		services,
		config.AppConfig.SiteDomain,
		config.AppConfig.MailPollInterval,
		log.New(os.Stdout, "MAILWORKER: ", log.LstdFlags),
	)
	go mailWorker.Start(ctx)

	app := fiber.New()
	app.Use(middleware.CORS())

	routes.SetupRoutes(app, config.DB, services, hub)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logger.Println("Shutting down...")
		cancel()
		if err := app.Shutdown(); err != nil {
			logger.Printf("Shutdown error: %v", err)
		}
	}()

	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
