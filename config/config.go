package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"econsensus/models"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB        *gorm.DB
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type Config struct {
	Environment      string        `json:"environment"`
	EncryptionKey    string        `json:"-"`
	ServerPort       string        `json:"server_port"`
	DBHost           string        `json:"db_host"`
	DBPort           string        `json:"db_port"`
	DBUser           string        `json:"db_user"`
	DBPassword       string        `json:"-"`
	DBName           string        `json:"db_name"`
	DBSSLMode        string        `json:"db_ssl_mode"`
	DBMaxIdleConns   int           `json:"db_max_idle_conns"`
	DBMaxOpenConns   int           `json:"db_max_open_conns"`
	SiteDomain       string        `json:"site_domain"`
	DefaultFromEmail string        `json:"default_from_email"`
	SMTPHost         string        `json:"smtp_host"`
	SMTPPort         int           `json:"smtp_port"`
	SMTPUsername     string        `json:"smtp_username"`
	SMTPPassword     string        `json:"-"`
	RateLimitWrites  int           `json:"rate_limit_writes"`
	Redis            RedisConfig   `json:"redis"`
	SentryDSN        string        `json:"-"`
	MailPollInterval time.Duration `json:"mail_poll_interval"`
	AllowedOrigins   []string      `json:"allowed_origins"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:      getEnv("ENVIRONMENT", "development"),
		EncryptionKey:    getEnv("ENCRYPTION_KEY", ""),
		ServerPort:       getEnv("SERVER_PORT", "8000"),
		DBHost:           getEnv("DB_HOST", "localhost"),
		DBPort:           getEnv("DB_PORT", "5432"),
		DBUser:           getEnv("DB_USER", "postgres"),
		DBPassword:       getEnv("DB_PASSWORD", ""),
		DBName:           getEnv("DB_NAME", "econsensus"),
		DBSSLMode:        getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns:   getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns:   getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
		SiteDomain:       getEnv("SITE_DOMAIN", "example.com"),
		DefaultFromEmail: getEnv("DEFAULT_FROM_EMAIL", "econsensus@example.com"),
		SMTPHost:         getEnv("SMTP_HOST", "localhost"),
		SMTPPort:         getEnvAsInt("SMTP_PORT", 25),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		RateLimitWrites:  getEnvAsInt("RATE_LIMIT_WRITES", 60),
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		SentryDSN:        getEnv("SENTRY_DSN", ""),
		MailPollInterval: getEnvAsDuration("MAIL_POLL_INTERVAL", 5*time.Minute),
		AllowedOrigins:   getEnvAsList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}

	if err := AppConfig.Validate(); err != nil {
		return err
	}

	logConfig()
	return nil
}

// Validate checks the settings the service cannot start without
func (c Config) Validate() error {
	if c.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	switch len(c.EncryptionKey) {
	case 16, 24, 32:
	default:
		return fmt.Errorf("ENCRYPTION_KEY must be 16, 24 or 32 bytes long")
	}
	if c.SiteDomain == "" {
		return fmt.Errorf("SITE_DOMAIN is required")
	}
	if !strings.Contains(c.DefaultFromEmail, "@") {
		return fmt.Errorf("DEFAULT_FROM_EMAIL must be an email address")
	}
	if c.Environment == "production" && c.SMTPUsername == "" {
		return fmt.Errorf("SMTP credentials are required in production")
	}
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

	log.Println("✅ Successfully connected to the database")
	log.Println("🔄 Starting database migration...")
	if err := MigrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("✅ Database migration completed")
	return nil
}

// MigrateDB creates the schema and seeds the notice types
func MigrateDB(db *gorm.DB) error {
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return err
	}
	if err := models.CreateNoticeTypes(db); err != nil {
		return fmt.Errorf("failed to seed notice types: %w", err)
	}
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("⚠️ Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func getEnvAsList(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
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
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Site: %s (from %s)", AppConfig.SiteDomain, AppConfig.DefaultFromEmail)
	log.Printf("SMTP: %s:%d", AppConfig.SMTPHost, AppConfig.SMTPPort)
	log.Printf("Redis rate limit storage: %t", AppConfig.Redis.Enabled)
}
