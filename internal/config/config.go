package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/feastly/settlement/internal/rates"
)

// Config holds all runtime settings, sourced from the environment (with an
// optional .env file for local development).
type Config struct {
	Port     string
	DBPath   string
	LogLevel string
	SeedPath string

	StripeAPIKey        string
	StripeWebhookSecret string

	// Platform fallback rate, applied when no configured rate matches.
	DefaultCommissionPct decimal.Decimal
	DefaultFixedFee      decimal.Decimal
}

// Load reads configuration from the environment. A missing .env file is not
// an error; OS environment variables and defaults apply.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded, using OS environment and defaults")
	}

	return &Config{
		Port:                 getEnv("PORT", "8080"),
		DBPath:               getEnv("DB_PATH", "settlement.db"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		SeedPath:             getEnv("SEED_PATH", "testdata/orders.json"),
		StripeAPIKey:         os.Getenv("STRIPE_API_KEY"),
		StripeWebhookSecret:  os.Getenv("STRIPE_WEBHOOK_SECRET"),
		DefaultCommissionPct: getEnvDecimal("DEFAULT_COMMISSION_PCT", rates.DefaultPercentage),
		DefaultFixedFee:      getEnvDecimal("DEFAULT_FIXED_FEE", rates.DefaultFixedFee),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvDecimal(key string, def decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		log.Printf("WARNING: invalid %s=%q, using default %s", key, v, def)
		return def
	}
	return d
}
