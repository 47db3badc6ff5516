package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"onboard-backend/internal/assessment"
	"onboard-backend/internal/auth"
	"onboard-backend/internal/config"
	"onboard-backend/internal/onboarding"
	"onboard-backend/internal/refdata"
	"onboard-backend/internal/schema"
	"onboard-backend/internal/store"
	"onboard-backend/internal/token"
	"onboard-backend/internal/writer"
)

func main() {
	ctx := context.Background()

	// 1. Load config; refuse to start without secrets
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	log.Printf("Config loaded (port: %d, db: %s:%d/%s)", cfg.Server.Port, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	// 3. Schema registry and storage bootstrap
	reg := schema.NewRegistry()
	if err := db.Bootstrap(ctx, reg, cfg.Auth.PasswordSalt); err != nil {
		log.Fatalf("Failed to bootstrap tables: %v", err)
	}
	log.Println("Tables ready")

	// 4. Core components
	codec := token.NewCodec(cfg.Auth.JWTSecret)
	gate := auth.NewGate(codec, cfg.Auth)
	rw := writer.New(db)

	// 5. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: refdata.ErrorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	// 6. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 7. Auth routes (no session required)
	authHandler := auth.NewHandler(db, codec, gate, cfg.Auth)
	auth.RegisterRoutes(app, authHandler)

	// 8. Session and role middleware
	sessionMW := gate.RequireSession()
	superUserMW := gate.RequireSuperUser()

	// 9. Onboarding routes
	onboardingHandler := onboarding.NewHandler(db, reg, rw, codec, cfg.Server.PublicURL)
	onboarding.RegisterRoutes(app, onboardingHandler, sessionMW, superUserMW)

	// 10. CBT routes
	cbtHandler := assessment.NewHandler(db, reg, rw, codec, cfg.CBT)
	assessment.RegisterRoutes(app, cbtHandler, sessionMW)

	// 11. Generic reference-data routes (last: catch-all :entity params)
	refHandler := refdata.NewHandler(db, reg, rw)
	refdata.RegisterRoutes(app, refHandler, sessionMW, superUserMW)

	// 12. Background invite sweeper
	sweeper := onboarding.NewInviteSweeper(db, reg, rw)
	sweeper.Start()
	defer sweeper.Stop()

	// 13. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Fatal(app.Listen(addr))
}
