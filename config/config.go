package config

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/joy095/carrental/logger"
)

var loadOnce sync.Once

// LoadEnv reads .env once; a missing file is fine outside development.
func LoadEnv() {
	loadOnce.Do(func() {
		if err := godotenv.Load(); err != nil {
			logger.InfoLogger.Info("No .env file found, using process environment")
		}
	})
}

// Config is the typed view of the environment used at wiring time.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	PaymentGateway        string // "khalti" or "razorpay"
	PaymentCurrency       string
	PaymentGatewayTimeout time.Duration
	PaymentReturnURL      string
	PaymentWebsiteURL     string
	FrontendBaseURL       string

	KhaltiBaseURL       string
	KhaltiSecretKey     string
	KhaltiWebhookSecret string

	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string

	SweepSchedule   string
	SweepStaleAfter time.Duration

	WebhookDedupeTTL time.Duration
	LookupRate       string

	BadWordsFile string
}

// Load returns the configuration with defaults applied.
func Load() Config {
	LoadEnv()

	return Config{
		Port:        GetEnv("PORT", "4000"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		PaymentGateway:        GetEnv("PAYMENT_GATEWAY", "khalti"),
		PaymentCurrency:       GetEnv("PAYMENT_CURRENCY", "NPR"),
		PaymentGatewayTimeout: GetEnvDuration("PAYMENT_GATEWAY_TIMEOUT", 15*time.Second),
		PaymentReturnURL:      GetEnv("PAYMENT_RETURN_URL", "http://localhost:4000/payment/payment-return"),
		PaymentWebsiteURL:     GetEnv("PAYMENT_WEBSITE_URL", "http://localhost:5173"),
		FrontendBaseURL:       GetEnv("BASE_URL", "http://localhost:5173"),

		KhaltiBaseURL:       GetEnv("KHALTI_API_BASE", "https://dev.khalti.com/api/v2"),
		KhaltiSecretKey:     os.Getenv("KHALTI_SECRET_KEY"),
		KhaltiWebhookSecret: os.Getenv("KHALTI_WEBHOOK_SECRET"),

		RazorpayKeyID:         os.Getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
		RazorpayWebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),

		SweepSchedule:   GetEnv("PAYMENT_SWEEP_SCHEDULE", "@every 5m"),
		SweepStaleAfter: GetEnvDuration("PAYMENT_SWEEP_STALE_AFTER", 10*time.Minute),

		WebhookDedupeTTL: GetEnvDuration("WEBHOOK_DEDUPE_TTL", 24*time.Hour),
		LookupRate:       GetEnv("PAYMENT_LOOKUP_RATE", "20-1m"),

		BadWordsFile: GetEnv("BAD_WORDS_FILE", "badwords/en.txt"),
	}
}

func GetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// GetEnvDuration accepts Go durations ("15s") or plain seconds ("15").
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	logger.WarnLogger.Warnf("Invalid duration for %s: %q, using %s", key, v, fallback)
	return fallback
}
