package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pvp-duel-engine/arbiter"
	"pvp-duel-engine/config"
	"pvp-duel-engine/handlers"
	"pvp-duel-engine/middleware"
	"pvp-duel-engine/models"
	"pvp-duel-engine/services"
	"pvp-duel-engine/utils"
	"pvp-duel-engine/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/jonboulle/clockwork"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	var moveArbiter arbiter.MoveArbiter = arbiter.NewLocal()
	if cfg.RedisURL != "" {
		redisArbiter, err := arbiter.NewRedisFromURL(ctx, cfg.RedisURL, cfg.MoveLockTTL)
		if err != nil {
			log.Fatal("failed to connect to redis:", err)
		}
		defer redisArbiter.Close()
		moveArbiter = redisArbiter
		log.Println("✅ Move arbiter: redis")
	} else {
		log.Println("⚠️  REDIS_URL not set, move arbiter is in-process (single instance only)")
	}

	clock := clockwork.NewRealClock()
	duelService := services.NewDuelService(db, moveArbiter, clock, services.PolicyFromConfig(cfg))

	if _, err := services.NewExpiryReaper(duelService, cfg.ReaperInterval).Start(ctx); err != nil {
		log.Fatal("failed to start expiry reaper:", err)
	}

	if cfg.EventsWebhookURL != "" {
		workers.NewEventDispatcher(db, cfg.EventsWebhookURL, cfg.GameServiceToken, cfg.EventsPollInterval).Start(ctx)
	} else {
		log.Println("⚠️  EVENTS_WEBHOOK_URL not set, events stay in the outbox")
	}

	if cfg.SyncServiceURL != "" {
		workers.NewParticipantSync(db, cfg.SyncServiceURL, cfg.GameServiceToken, cfg.SyncInterval).Start(ctx)
	} else {
		log.Println("⚠️  SYNC_SERVICE_URL not set, participant directory will not refresh")
	}

	if cfg.R2.Enabled() {
		store, err := utils.NewR2Store(ctx, cfg.R2, "")
		if err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		if _, err := workers.NewArchiver(db, store, cfg.ArchiveAfter, cfg.ArchiveInterval, clock).Start(ctx); err != nil {
			log.Fatal("failed to start archiver:", err)
		}
	}

	app := fiber.New()

	// 🔐❗ GLOBAL: Only Gateway requests allowed
	app.Use(middleware.GatewayAuthMiddleware(cfg.GameServiceToken))

	allowedOrigins := strings.Join(cfg.AllowedOrigins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,OPTIONS,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control, Last-Event-ID, X-Service-Token, X-User-ID, X-User-Name",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupDuelRoutes(app, duelService)

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Duel engine listening on %s", cfg.ListenAddr)
	log.Printf("✅ CORS configured for origins: %s", allowedOrigins)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
