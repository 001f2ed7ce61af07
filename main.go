package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"chatbet/config"
	"chatbet/controllers/admin"
	"chatbet/controllers/payment"
	"chatbet/controllers/webhook"
	"chatbet/database"
	"chatbet/flow"
	"chatbet/jobs"
	"chatbet/logger"
	"chatbet/metrics"
	"chatbet/queue"
	"chatbet/ratelimit"
	"chatbet/routes"
	"chatbet/services"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using environment")
	}

	database.Connect()

	flows, err := flow.LoadDir(config.FlowDir())
	if err != nil {
		log.Fatalf("❌ Failed to load flow definitions: %v", err)
	}
	if err := flow.SeedDatabase(database.DB, flows); err != nil {
		log.Fatalf("❌ Failed to seed flow definitions: %v", err)
	}
	log.Printf("✅ Loaded %d flow definitions\n", len(flows))

	jobQueue, err := queue.NewNATSQueue(config.NATSURL(), logger.New("queue"))
	if err != nil {
		log.Fatalf("❌ Failed to connect to NATS: %v", err)
	}

	ledger := services.NewLedger(logger.New("ledger"))
	limiter := ratelimit.New(config.SportsAPIRate(), 4)
	sports := services.NewSportsDataService(database.DB, limiter, logger.New("sportsdata"))
	referral := services.NewReferralEngine(database.DB, ledger, jobQueue, logger.New("referral"))
	tickets := services.NewTicketEngine(database.DB, ledger, logger.New("ticket"))
	settlement := services.NewSettlementEngine(database.DB, ledger, referral, jobQueue, logger.New("settlement"))
	sender := services.NewWhatsAppSender(logger.New("whatsapp"))

	registry := flow.NewRegistry(flows)
	engine := flow.NewEngine(flow.NewGormStore(database.DB), registry, logger.New("flow"))
	services.RegisterFlowActions(engine, services.ActionDeps{
		DB:       database.DB,
		Ledger:   ledger,
		Tickets:  tickets,
		Sports:   sports,
		Referral: referral,
		Log:      logger.New("actions"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobDeps := jobs.Deps{
		DB:         database.DB,
		Queue:      jobQueue,
		Sports:     sports,
		Settlement: settlement,
		Sender:     sender,
		Log:        logger.New("jobs"),
	}
	jobs.RegisterHandlers(jobDeps)
	if err := jobQueue.Start(ctx); err != nil {
		log.Fatalf("❌ Failed to start job workers: %v", err)
	}
	jobs.StartSchedulers(ctx, jobDeps)

	go func() {
		if err := metrics.Serve(config.MetricsAddr()); err != nil {
			log.Printf("❌ Metrics listener failed: %v", err)
		}
	}()

	app := fiber.New()
	routes.Setup(app, routes.Handlers{
		Webhook: webhook.NewHandler(database.DB, engine, sender, logger.New("webhook")),
		Payment: payment.NewHandler(database.DB, ledger, referral, engine, sender, logger.New("payment")),
		Admin:   admin.NewHandler(database.DB, settlement, jobQueue, logger.New("admin")),
	})

	host := os.Getenv("HOST")
	port := os.Getenv("PORT")
	if host == "" {
		host = "127.0.0.1"
	}
	if port == "" {
		port = "3000"
	}

	addr := fmt.Sprintf("%s:%s", host, port)
	log.Println("Server running at", addr)

	go func() {
		if err := app.Listen(addr); err != nil {
			log.Panicf("Failed to start server: %v", err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Println("Gracefully shutting down...")
	cancel()
	jobQueue.Stop()
	if err := app.Shutdown(); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited cleanly")
}
