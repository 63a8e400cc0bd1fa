package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	ServerPort string

	JWTSecret string

	RedisURL string

	FCMProjectID   string
	FCMClientEmail string
	FCMPrivateKey  string

	Timezone string

	DispatchImmediateIntervalSeconds int
	DispatchRetryIntervalSeconds     int
	AlertHour                        int
	CleanupHour                      int
	ProcessedRetentionDays           int
	RetryRetentionDays               int
	ScoreAlertThreshold              int
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables")
	}

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	timezone := os.Getenv("TIMEZONE")
	if timezone == "" {
		timezone = "Asia/Seoul"
	}

	return &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		ServerPort: serverPort,

		JWTSecret: os.Getenv("JWT_SECRET"),

		RedisURL: os.Getenv("REDIS_URL"),

		FCMProjectID:   os.Getenv("FCM_PROJECT_ID"),
		FCMClientEmail: os.Getenv("FCM_CLIENT_EMAIL"),
		FCMPrivateKey:  os.Getenv("FCM_PRIVATE_KEY"),

		Timezone: timezone,

		DispatchImmediateIntervalSeconds: envInt("DISPATCH_IMMEDIATE_INTERVAL_SECONDS", 60),
		DispatchRetryIntervalSeconds:     envInt("DISPATCH_RETRY_INTERVAL_SECONDS", 300),
		AlertHour:                        envInt("ALERT_HOUR", 9),
		CleanupHour:                      envInt("CLEANUP_HOUR", 3),
		ProcessedRetentionDays:           envInt("PROCESSED_RETENTION_DAYS", 7),
		RetryRetentionDays:               envInt("RETRY_RETENTION_DAYS", 30),
		ScoreAlertThreshold:              envInt("SCORE_ALERT_THRESHOLD", 15),
	}, nil
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
