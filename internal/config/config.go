package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env           string
	Port          string
	SessionSecret string
	DatabaseURL   string
	RedisURL      string

	StripeSecretKey         string
	StripeDisbursementAcct  string
	RetentionThresholdCents int64
	SettlementMaxRetries    int
	SettlementInterval      time.Duration
	SettlementConcurrency   int
	ProviderTimeout         time.Duration

	FrontendURLEndsWith string
	DevPassword         string
	AllowCrossSiteDev   bool
	HealthAdminKey      string
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	port := viper.GetString("PORT")
	if port == "" {
		port = "8080"
	}
	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL_DEV")
	if env == "production" {
		dbURL = viper.GetString("DATABASE_URL_PROD")
	} else if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL_DEV")
	}

	interval := viper.GetDuration("SETTLEMENT_INTERVAL")
	if interval <= 0 {
		interval = 30 * time.Second
	}
	providerTimeout := viper.GetDuration("PROVIDER_TIMEOUT")
	if providerTimeout <= 0 {
		providerTimeout = 30 * time.Second
	}

	return &Config{
		Env:           env,
		Port:          port,
		SessionSecret: viper.GetString("SESSION_SECRET"),
		DatabaseURL:   dbURL,
		RedisURL:      viper.GetString("REDIS_URL"),

		StripeSecretKey:         viper.GetString("STRIPE_SECRET_KEY"),
		StripeDisbursementAcct:  viper.GetString("STRIPE_DISBURSEMENT_ACCOUNT"),
		RetentionThresholdCents: viper.GetInt64("RETENTION_THRESHOLD_CENTS"),
		SettlementMaxRetries:    viper.GetInt("SETTLEMENT_MAX_RETRIES"),
		SettlementInterval:      interval,
		SettlementConcurrency:   viper.GetInt("SETTLEMENT_CONCURRENCY"),
		ProviderTimeout:         providerTimeout,

		FrontendURLEndsWith: viper.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         viper.GetString("DEV_PASSWORD"),
		AllowCrossSiteDev:   strings.EqualFold(viper.GetString("ALLOW_CROSS_SITE_DEV"), "true"),
		HealthAdminKey:      viper.GetString("HEALTH_ADMIN_KEY"),
	}, nil
}
