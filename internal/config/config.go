package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	// WhatsApp Cloud API
	WhatsAppAPIBaseURL   string
	WhatsAppAccessToken  string
	WhatsAppPhoneID      string
	WhatsAppVerifyToken  string
	WhatsAppTemplateLang string

	// Cron / scheduled message processing
	CronSecret         string
	CronBatchSize      int
	CronRetryMax       int
	CronRetryBackoff   time.Duration
	CronTickerInterval time.Duration
	CronTickerEnabled  bool

	// Conversation behaviour
	SessionTimeout     time.Duration
	BookingHorizonDays int
	PhoneLockTTL       time.Duration

	// Clinic identity used in outbound messages and emails
	ClinicName    string
	ClinicPhone   string
	ClinicAddress string
	ClinicHours   string

	// Email
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	AWSRegion         string
	SESFromEmail      string
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		WhatsAppAPIBaseURL:   getEnv("WHATSAPP_API_BASE_URL", "https://graph.facebook.com/v19.0"),
		WhatsAppAccessToken:  getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppPhoneID:      getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppVerifyToken:  getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppTemplateLang: getEnv("WHATSAPP_TEMPLATE_LANG", "en"),

		CronSecret:         getEnv("CRON_SECRET", ""),
		CronBatchSize:      getEnvAsInt("CRON_BATCH_SIZE", 50),
		CronRetryMax:       getEnvAsInt("CRON_RETRY_MAX_ATTEMPTS", 3),
		CronRetryBackoff:   getEnvAsDuration("CRON_RETRY_BACKOFF", 5*time.Minute),
		CronTickerInterval: getEnvAsDuration("CRON_TICKER_INTERVAL", time.Minute),
		CronTickerEnabled:  getEnvAsBool("CRON_TICKER_ENABLED", false),

		SessionTimeout:     getEnvAsDuration("SESSION_TIMEOUT", 30*time.Minute),
		BookingHorizonDays: getEnvAsInt("BOOKING_HORIZON_DAYS", 90),
		PhoneLockTTL:       getEnvAsDuration("PHONE_LOCK_TTL", 30*time.Second),

		ClinicName:    getEnv("CLINIC_NAME", "Arogya Skin & Care Clinic"),
		ClinicPhone:   getEnv("CLINIC_PHONE", "+91 98765 43210"),
		ClinicAddress: getEnv("CLINIC_ADDRESS", "2nd Floor, MG Road, Bengaluru"),
		ClinicHours:   getEnv("CLINIC_HOURS", "Mon-Sat 9:00 AM - 7:00 PM, closed Sundays"),

		EmailProvider:     getEnv("EMAIL_PROVIDER", "sendgrid"),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Arogya Clinic"),
		AWSRegion:         getEnv("AWS_REGION", "ap-south-1"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
