package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Port           int
	JWTSecret      string
	DatabaseURL    string
	CORSOrigins    []string
	AdminEmail     string
	AdminPassword  string
	RazorpayKeyID  string
	RazorpaySecret string
	GatewayTimeout time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	port, _ := strconv.Atoi(getEnv("PORT", "4001"))

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	dbURL := getEnv("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	razorpaySecret := getEnv("RAZORPAY_KEY_SECRET", "")
	if razorpaySecret == "" {
		return nil, fmt.Errorf("RAZORPAY_KEY_SECRET is required (payment verification is keyed on it)")
	}

	timeoutSec, _ := strconv.Atoi(getEnv("GATEWAY_TIMEOUT_SECONDS", "10"))

	origins := strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	return &Config{
		Port:           port,
		JWTSecret:      jwtSecret,
		DatabaseURL:    dbURL,
		CORSOrigins:    origins,
		AdminEmail:     getEnv("ADMIN_EMAIL", "admin@tradejournalai.in"),
		AdminPassword:  getEnv("ADMIN_PASSWORD", "admin123"),
		RazorpayKeyID:  getEnv("RAZORPAY_KEY_ID", ""),
		RazorpaySecret: razorpaySecret,
		GatewayTimeout: time.Duration(timeoutSec) * time.Second,
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
