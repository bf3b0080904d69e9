package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"nurtureflow/config"
	"nurtureflow/mailer"
	"nurtureflow/middleware"
	"nurtureflow/routes"
	"nurtureflow/scheduler"
	"nurtureflow/sequence"
	"nurtureflow/store"
	"nurtureflow/utils"
	"nurtureflow/worker"
)

func main() {
	mintToken := flag.String("mint-service-token", "", "print a 24h service JWT for the named caller and exit")
	flag.Parse()

	logger := log.New(os.Stdout, "NURTURE: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Operators mint tokens for the admin routes out-of-band with the same
	// JWT_SECRET the server validates against.
	if *mintToken != "" {
		token, err := utils.GenerateServiceToken(*mintToken, 24*time.Hour)
		if err != nil {
			logger.Fatalf("Failed to mint service token: %v", err)
		}
		fmt.Println(token)
		return
	}

	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry init failed: %v", err)
		}
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Wire the sequence engine
	recordStore := store.NewGormStore(config.DB)
	sched := scheduler.NewDBScheduler(recordStore, log.New(os.Stdout, "SCHEDULER: ", log.LstdFlags))

	profile, err := sequence.ParseProfile(config.AppConfig.TimingProfile)
	if err != nil {
		logger.Fatalf("Invalid timing profile: %v", err)
	}

	smtpMailer := mailer.NewSMTPMailer(
		config.AppConfig.SMTPHost,
		config.AppConfig.SMTPPort,
		config.AppConfig.SMTPUsername,
		config.AppConfig.SMTPPassword,
		config.AppConfig.FromName,
		config.AppConfig.FromEmail,
	)

	resolver := sequence.NewResolver(recordStore)
	sender := sequence.NewStepSender(recordStore, smtpMailer, resolver, log.New(os.Stdout, "SENDER: ", log.LstdFlags))
	orchestrator := sequence.NewOrchestrator(recordStore, sched, profile, log.New(os.Stdout, "ORCHESTRATOR: ", log.LstdFlags))

	// Start the dispatch worker
	dispatchWorker := worker.NewDispatchWorker(
		recordStore,
		sender,
		log.New(os.Stdout, "DISPATCH: ", log.LstdFlags),
		config.AppConfig.WorkerInterval,
		config.AppConfig.WorkerBatchSize,
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dispatchWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, &routes.Deps{
		DB:           config.DB,
		Store:        recordStore,
		Scheduler:    sched,
		Orchestrator: orchestrator,
	})

	// Start server
	logger.Printf("Server starting on port %s (timing profile: %s)", config.AppConfig.ServerPort, profile)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
