package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port                  string
	DBConn                string
	LogLevel              string
	JWTSecret             string
	EncryptionKey         string
	OpenBankURL           string
	OpenBankWebhookSecret string
	SandboxWebhookSecret  string
	SMTPHost              string
	SMTPPort              string
	SMTPUsername          string
	SMTPPassword          string
	SenderEmail           string
	NotifyEmail           string
	SyncWindowDays        int
	LinkSessionTTLMinutes int
}

// NewConfig loads configuration from a .env file (if present) and
// environment variables
func NewConfig() (*Config, error) {
	// Best effort; env vars win over the file
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		DBConn:                getEnv("DB_CONN", "host=localhost port=5432 user=finlink password=finlink dbname=finlink sslmode=disable"),
		LogLevel:              getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:             getEnv("JWT_SECRET", "secret"),
		EncryptionKey:         getEnv("ENCRYPTION_KEY", "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"),
		OpenBankURL:           getEnv("OPENBANK_URL", "https://api.openbank.example/v1"),
		OpenBankWebhookSecret: getEnv("OPENBANK_WEBHOOK_SECRET", ""),
		SandboxWebhookSecret:  getEnv("SANDBOX_WEBHOOK_SECRET", ""),
		SMTPHost:              getEnv("SMTP_HOST", ""),
		SMTPPort:              getEnv("SMTP_PORT", "587"),
		SMTPUsername:          getEnv("SMTP_USERNAME", ""),
		SMTPPassword:          getEnv("SMTP_PASSWORD", ""),
		SenderEmail:           getEnv("SENDER_EMAIL", "noreply@finlink.local"),
		NotifyEmail:           getEnv("NOTIFY_EMAIL", ""),
		SyncWindowDays:        getEnvInt("SYNC_WINDOW_DAYS", 90),
		LinkSessionTTLMinutes: getEnvInt("LINK_SESSION_TTL_MINUTES", 30),
	}

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if cfg.SyncWindowDays <= 0 {
		return nil, fmt.Errorf("SYNC_WINDOW_DAYS must be positive")
	}
	if cfg.LinkSessionTTLMinutes <= 0 {
		return nil, fmt.Errorf("LINK_SESSION_TTL_MINUTES must be positive")
	}

	return cfg, nil
}

// WebhookSecret resolves the shared HMAC secret for one provider's webhook
// endpoint. Providers without a configured secret are not reachable over the
// webhook route.
func (c *Config) WebhookSecret(provider string) (string, bool) {
	secrets := map[string]string{
		"openbank": c.OpenBankWebhookSecret,
		"sandbox":  c.SandboxWebhookSecret,
	}
	secret := secrets[provider]
	return secret, secret != ""
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultVal
	}
	return parsed
}
