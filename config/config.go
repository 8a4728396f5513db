package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"reachloop/models"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB        *gorm.DB
	AppConfig Config
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type SMTPConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
}

type IMAPConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"-"`
	Mailbox    string `json:"mailbox"`
	Encryption string `json:"encryption"` // SSL, STARTTLS, NONE
}

// ChatAPIConfig holds credentials for the chat-messaging provider
// (business messaging API keyed by a registered sender phone number).
type ChatAPIConfig struct {
	BaseURL  string `json:"base_url"`
	Token    string `json:"-"`
	SenderID string `json:"sender_id"`
}

// BotAPIConfig holds credentials for the bot-messaging provider.
type BotAPIConfig struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"-"`
}

type Config struct {
	Environment string `json:"environment"`
	ServerPort  string `json:"server_port"`
	BaseURL     string `json:"base_url"` // public base URL for tracking links

	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	JWTSecret      string `json:"-"`
	CronSecret     string `json:"-"`
	TrackingSecret string `json:"-"`

	// Per-channel webhook signing secrets
	EmailWebhookSecret string `json:"-"`
	ChatWebhookSecret  string `json:"-"`
	BotWebhookSecret   string `json:"-"`

	// Executor tuning
	ExecutorBatchSize       int `json:"executor_batch_size"`
	ExecutorWorkers         int `json:"executor_workers"`
	ExecutorIntervalMinutes int `json:"executor_interval_minutes"`
	SendTimeoutSeconds      int `json:"send_timeout_seconds"`

	RateLimitWebhook int `json:"rate_limit_webhook"` // requests/min per channel+IP

	SentryDSN string `json:"-"`

	Redis   RedisConfig   `json:"redis"`
	SMTP    SMTPConfig    `json:"smtp"`
	IMAP    IMAPConfig    `json:"imap"`
	ChatAPI ChatAPIConfig `json:"chat_api"`
	BotAPI  BotAPIConfig  `json:"bot_api"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
}

func LoadConfig() error {
	AppConfig = Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  getEnv("SERVER_PORT", "5000"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:5000"),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "reachloop"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		JWTSecret:      getEnv("JWT_SECRET", ""),
		CronSecret:     getEnv("CRON_SECRET", ""),
		TrackingSecret: getEnv("TRACKING_SECRET", ""),

		EmailWebhookSecret: getEnv("EMAIL_WEBHOOK_SECRET", ""),
		ChatWebhookSecret:  getEnv("CHAT_WEBHOOK_SECRET", ""),
		BotWebhookSecret:   getEnv("BOT_WEBHOOK_SECRET", ""),

		ExecutorBatchSize:       getEnvAsInt("EXECUTOR_BATCH_SIZE", 20),
		ExecutorWorkers:         getEnvAsInt("EXECUTOR_WORKERS", 4),
		ExecutorIntervalMinutes: getEnvAsInt("EXECUTOR_INTERVAL_MINUTES", 5),
		SendTimeoutSeconds:      getEnvAsInt("SEND_TIMEOUT_SECONDS", 15),

		RateLimitWebhook: getEnvAsInt("RATE_LIMIT_WEBHOOK", 120),

		SentryDSN: getEnv("SENTRY_DSN", ""),

		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "false") == "true",
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", ""),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromEmail: getEnv("SMTP_FROM_EMAIL", ""),
			FromName:  getEnv("SMTP_FROM_NAME", ""),
		},
		IMAP: IMAPConfig{
			Host:       getEnv("IMAP_HOST", ""),
			Port:       getEnvAsInt("IMAP_PORT", 993),
			Username:   getEnv("IMAP_USERNAME", ""),
			Password:   getEnv("IMAP_PASSWORD", ""),
			Mailbox:    getEnv("IMAP_MAILBOX", "INBOX"),
			Encryption: getEnv("IMAP_ENCRYPTION", "SSL"),
		},
		ChatAPI: ChatAPIConfig{
			BaseURL:  getEnv("CHAT_API_BASE_URL", ""),
			Token:    getEnv("CHAT_API_TOKEN", ""),
			SenderID: getEnv("CHAT_API_SENDER_ID", ""),
		},
		BotAPI: BotAPIConfig{
			BaseURL: getEnv("BOT_API_BASE_URL", ""),
			Token:   getEnv("BOT_API_TOKEN", ""),
		},
	}

	// Validate required configurations
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if AppConfig.CronSecret == "" {
		return fmt.Errorf("CRON_SECRET is required")
	}
	if AppConfig.TrackingSecret == "" {
		return fmt.Errorf("TRACKING_SECRET is required")
	}
	if AppConfig.Environment == "production" {
		if AppConfig.EmailWebhookSecret == "" || AppConfig.ChatWebhookSecret == "" || AppConfig.BotWebhookSecret == "" {
			return fmt.Errorf("webhook signing secrets are required in production")
		}
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("Successfully connected to the database")
	log.Println("Starting database migration...")
	if err := MigrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("Database migration completed")
	return nil
}

// MigrateDB runs AutoMigrate for every model. Exported so tests can run the
// same schema against an in-memory database.
func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Tenant{},
		&models.TenantFeature{},
		&models.Contact{},
		&models.ContactCustomField{},
		&models.ConsentRecord{},
		&models.Sequence{},
		&models.SequenceStep{},
		&models.MessageTemplate{},
		&models.Enrollment{},
		&models.Execution{},
		&models.ChannelConfig{},
	)
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Channels configured: email(%t), chat(%t), bot(%t)",
		AppConfig.SMTP.Host != "",
		AppConfig.ChatAPI.Token != "",
		AppConfig.BotAPI.Token != "")
}
