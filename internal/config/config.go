package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                   int
	DatabasePath           string
	LogDirectory           string
	AnalyticsConfigPath    string
	SiteID                 string
	MQTTBroker             string // Empty disables the MQTT alert sink
	MQTTTopic              string
	MQTTClientID           string
	WebhookURL             string // Empty disables the webhook alert sink
	CanonicalBufferLimit   int
	CanonicalFlushInterval time.Duration
	StoreTimeout           time.Duration // Upper bound for a single store or sink call
	ModelRetrainInterval   time.Duration
	ModelMinSamples        int
	MotionThreshold        int // Changed pixels needed to report motion
}

// Load reads the process configuration from the environment, after loading
// an optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:                   getEnvAsInt("PORT", 8080),
		DatabasePath:           getEnv("DB_PATH", filepath.Join(".", "data", "vigil.db")),
		LogDirectory:           getEnv("LOG_DIR", filepath.Join(".", "logs")),
		AnalyticsConfigPath:    getEnv("ANALYTICS_CONFIG", filepath.Join(".", "config", "analytics.yaml")),
		SiteID:                 getEnv("SITE_ID", "default"),
		MQTTBroker:             getEnv("MQTT_BROKER", ""),
		MQTTTopic:              getEnv("MQTT_TOPIC", "vms/events"),
		MQTTClientID:           getEnv("MQTT_CLIENT_ID", "vigil-core"),
		WebhookURL:             getEnv("WEBHOOK_URL", ""),
		CanonicalBufferLimit:   getEnvAsInt("CANONICAL_BUFFER_LIMIT", 50),
		CanonicalFlushInterval: getEnvAsDuration("CANONICAL_FLUSH_INTERVAL", 5*time.Second),
		StoreTimeout:           getEnvAsDuration("STORE_TIMEOUT", 2*time.Second),
		ModelRetrainInterval:   getEnvAsDuration("MODEL_RETRAIN_INTERVAL", time.Hour),
		ModelMinSamples:        getEnvAsInt("MODEL_MIN_SAMPLES", 20),
		MotionThreshold:        getEnvAsInt("MOTION_THRESHOLD", 500),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
