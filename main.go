package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joy095/carrental/badwords"
	"github.com/joy095/carrental/clients"
	"github.com/joy095/carrental/config"
	"github.com/joy095/carrental/config/db"
	"github.com/joy095/carrental/config/redis"
	"github.com/joy095/carrental/jobs"
	"github.com/joy095/carrental/logger"
	"github.com/joy095/carrental/metrics"
	"github.com/joy095/carrental/middlewares/cors"
	logger_middleware "github.com/joy095/carrental/middlewares/logger"
	"github.com/joy095/carrental/repository"
	"github.com/joy095/carrental/routes"
	"github.com/joy095/carrental/services/booking_lifecycle_service"
	"github.com/joy095/carrental/services/driver_assignment_service"
	"github.com/joy095/carrental/services/payment_reconciliation_service"
	"github.com/joy095/carrental/utils"
	"github.com/joy095/carrental/utils/mail"
	"github.com/joy095/carrental/utils/ttlstore"
)

func init() {
	logger.InitLoggers()
	config.LoadEnv()
}

func main() {
	cfg := config.Load()

	store := openStore(cfg)
	defer db.Close()

	rdb, err := redis.GetRedisClient(context.Background(), cfg.RedisURL)
	if err != nil {
		logger.WarnLogger.Warnf("Redis unavailable, using in-process stores: %v", err)
		rdb = nil
	}
	defer redis.CloseRedis()

	var dedupe ttlstore.Store
	if rdb != nil {
		dedupe = ttlstore.NewRedisStore(rdb, "carrental")
	} else {
		mem := ttlstore.NewMemoryStore(time.Minute)
		defer mem.Stop()
		dedupe = mem
	}

	khalti := clients.NewKhaltiClient(cfg.KhaltiBaseURL, cfg.KhaltiSecretKey, cfg.KhaltiWebhookSecret, cfg.PaymentGatewayTimeout)
	if cfg.KhaltiWebhookSecret == "" {
		logger.WarnLogger.Warn("KHALTI_WEBHOOK_SECRET is not set; unsigned webhooks are accepted and confirmed by lookup only")
	}
	var gateways []clients.PaymentGateway
	if cfg.RazorpayKeyID != "" {
		gateways = append(gateways, clients.NewRazorpayClient(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayWebhookSecret, cfg.PaymentCurrency))
	}

	// The configured gateway initiates sessions; every known gateway may
	// still deliver webhooks.
	primary := clients.PaymentGateway(khalti)
	if cfg.PaymentGateway == "razorpay" && len(gateways) > 0 {
		primary, gateways = gateways[0], []clients.PaymentGateway{khalti}
	} else if cfg.PaymentGateway == "razorpay" {
		logger.WarnLogger.Warn("PAYMENT_GATEWAY=razorpay but RAZORPAY_KEY_ID is not set, falling back to khalti")
	}

	if err := badwords.LoadBadWords(cfg.BadWordsFile); err != nil {
		logger.WarnLogger.Warnf("Review moderation disabled: %v", err)
	}

	mailer := mail.NewFromEnv()

	drivers := driver_assignment_service.New(store)
	bookings := booking_lifecycle_service.New(store, mailer)
	payments := payment_reconciliation_service.New(store, primary, dedupe, mailer, payment_reconciliation_service.Config{
		ReturnURL:  cfg.PaymentReturnURL,
		WebsiteURL: cfg.PaymentWebsiteURL,
		Currency:   cfg.PaymentCurrency,
		DedupeTTL:  cfg.WebhookDedupeTTL,
	}, gateways...)
	logger.InfoLogger.Infof("Payment gateway: %s", payments.GatewayName())

	sweeper, err := jobs.Schedule(cfg.SweepSchedule, jobs.NewPaymentSweepJob(payments, cfg.SweepStaleAfter))
	if err != nil {
		logger.ErrorLogger.Fatalf("Invalid PAYMENT_SWEEP_SCHEDULE %q: %v", cfg.SweepSchedule, err)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger_middleware.GinLogger())
	r.Use(metrics.PrometheusMiddleware())
	r.Use(cors.CorsMiddleware())

	routes.RegisterRoutes(r, routes.Deps{
		Store:           store,
		Bookings:        bookings,
		Drivers:         drivers,
		Payments:        payments,
		Redis:           rdb,
		JWTSecret:       utils.GetJWTSecret(),
		FrontendBaseURL: cfg.FrontendBaseURL,
		LookupRate:      cfg.LookupRate,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.InfoLogger.Infof("Car rental server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorLogger.Fatalf("Server failed to listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.InfoLogger.Info("Shutting down server...")

	<-sweeper.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.ErrorLogger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.InfoLogger.Info("Server exited gracefully.")
}

// openStore uses Postgres when DATABASE_URL is set and falls back to the
// in-memory store for local runs.
func openStore(cfg config.Config) repository.Store {
	if cfg.DatabaseURL == "" {
		logger.WarnLogger.Warn("DATABASE_URL not set, using in-memory store; data is lost on restart")
		return repository.NewMemoryStore()
	}

	if err := db.Connect(cfg.DatabaseURL); err != nil {
		logger.ErrorLogger.Fatalf("Failed to connect to database: %v", err)
	}

	store := repository.NewPostgresStore(db.DB)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.Migrate(ctx); err != nil {
		logger.ErrorLogger.Fatalf("Failed to apply schema: %v", err)
	}
	return store
}
