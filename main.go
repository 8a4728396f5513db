package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reachloop/config"
	"reachloop/outreach"
	"reachloop/routes"
	"reachloop/worker"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	if err := config.LoadConfig(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if dsn := config.AppConfig.SentryDSN; dsn != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Environment: config.AppConfig.Environment,
		})
		if err != nil {
			log.Printf("Sentry init failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	if err := config.ConnectDB(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Engine wiring
	events := outreach.NewLogger()
	providers := outreach.NewProviderSet()
	tracker := outreach.NewTracker(config.DB, events)
	hub := outreach.NewHub()
	executor := outreach.NewExecutor(config.DB, providers, tracker, events, hub)
	executor.BatchSize = config.AppConfig.ExecutorBatchSize
	executor.Workers = config.AppConfig.ExecutorWorkers
	executor.SendTimeout = time.Duration(config.AppConfig.SendTimeoutSeconds) * time.Second
	executor.BaseURL = config.AppConfig.BaseURL

	app := fiber.New(fiber.Config{
		AppName:      "reachloop",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Cron-Secret, X-Webhook-Signature",
	}))

	routes.SetupRoutes(app, executor, tracker, events, hub)

	executorWorker := worker.NewExecutorWorker(executor,
		time.Duration(config.AppConfig.ExecutorIntervalMinutes)*time.Minute)
	executorWorker.Start()

	replyWorker := worker.NewReplyWorker(config.DB, tracker)
	replyWorker.Start()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Println("Shutting down...")
		executorWorker.Stop()
		replyWorker.Stop()
		if err := app.Shutdown(); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("Starting server on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
