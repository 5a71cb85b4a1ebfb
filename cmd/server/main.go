package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tradejournalai/backend/internal/config"
	"github.com/tradejournalai/backend/internal/handler"
	appMiddleware "github.com/tradejournalai/backend/internal/middleware"
	"github.com/tradejournalai/backend/internal/repository"
	"github.com/tradejournalai/backend/internal/service"
	"github.com/tradejournalai/backend/pkg/payment"
)

func main() {
	// Load .env file if present (for local development)
	if err := godotenv.Load(); err == nil {
		log.Println("✅ .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	ctx := context.Background()

	// Initialize database
	db, err := repository.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Database error: %v", err)
	}
	defer db.Close()

	if err := repository.RunMigrations(ctx, db); err != nil {
		log.Fatalf("❌ Migration error: %v", err)
	}
	log.Println("✅ Database connected & migrated")

	// Payment gateway. Without credentials the mock keeps local development
	// working; signature verification stays real either way.
	var gateway payment.Gateway
	if cfg.RazorpayKeyID != "" {
		gateway = payment.NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpaySecret, cfg.GatewayTimeout)
		log.Println("✅ Razorpay gateway configured")
	} else {
		gateway = payment.NewMockGateway()
		log.Println("⚠️  RAZORPAY_KEY_ID not set, using mock gateway")
	}
	verifier := payment.NewVerifier(cfg.RazorpaySecret)

	// Repositories & services
	userRepo := repository.NewUserRepository(db)
	redemptionRepo := repository.NewRedemptionRepository(db)
	orderRepo := repository.NewOrderRepository(db)

	authSvc := service.NewAuthService(cfg.JWTSecret, cfg.AdminEmail, cfg.AdminPassword, userRepo)
	if err := authSvc.SeedAdmin(ctx); err != nil {
		log.Fatalf("❌ Admin seed error: %v", err)
	}

	paymentSvc := service.NewPaymentService(userRepo, redemptionRepo, orderRepo, gateway, verifier, cfg.RazorpayKeyID)
	referralSvc := service.NewReferralService(userRepo, redemptionRepo)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	referralHandler := handler.NewReferralHandler(referralSvc)
	plansHandler := handler.NewPlansHandler()
	healthHandler := handler.NewHealthHandler(db)
	adminHandler := handler.NewAdminHandler(userRepo, redemptionRepo, orderRepo, authSvc)

	// Build router
	r := chi.NewRouter()

	// Global middleware
	r.Use(appMiddleware.Recovery)
	r.Use(appMiddleware.Logger)
	r.Use(appMiddleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Global rate limiter (20 req/sec per IP, burst of 40)
	globalRL := appMiddleware.NewRateLimiter(20, 40)
	r.Use(globalRL.Middleware())

	// Public routes
	r.Get("/health", healthHandler.Check)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/plans", plansHandler.List)

	// Auth routes
	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.StrictRateLimiter())
		r.Post("/api/auth/register", authHandler.Register)
		r.Post("/api/auth/login", authHandler.Login)
	})

	// Protected API routes
	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.Auth(authSvc))

		r.Get("/api/auth/me", authHandler.Me)

		// Payments
		r.Post("/api/payments/create-order", paymentHandler.CreateOrder)
		r.Post("/api/payments/verify", paymentHandler.Verify)
		r.Get("/api/payments/payment/{paymentId}", paymentHandler.GetPayment)

		// Referral
		r.Post("/api/referral/apply", referralHandler.Apply)
		r.Post("/api/referral/generate", referralHandler.Generate)
		r.Get("/api/referral/me", referralHandler.Me)

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.AdminOnly)
			r.Get("/api/admin/stats", adminHandler.GetStats)
			r.Get("/api/admin/users", adminHandler.ListUsers)
		})
	})

	// Start server
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("🛑 Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("🚀 TradeJournalAI Backend listening at http://%s", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("❌ Server error: %v", err)
	}
}
