package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// HTTP surface
	HTTPAddr string

	// Delivery defaults, used to seed the settings file on first run
	ScanEndpointURL string
	DeviceInfo      string
	DefaultScanType string
	SettingsFile    string

	DedupWindow     time.Duration
	DeliveryTimeout time.Duration

	// Line-oriented scanner input ("-" for stdin, empty disables)
	ScannerDevice string

	// PocketBase history mirror
	PocketBaseURL   string
	PocketBaseToken string

	// Kafka scan feed
	KafkaBrokers []string
	KafkaTopic   string

	// Telegram Bot
	TelegramBotToken string
	AuthorizedChatID string

	LogLevel  string
	LogFormat string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Debug("no .env file loaded")
	}

	return &Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		ScanEndpointURL:  os.Getenv("SCAN_ENDPOINT_URL"),
		DeviceInfo:       getEnv("DEVICE_INFO", "Go Scanner Relay"),
		DefaultScanType:  getEnv("DEFAULT_SCAN_TYPE", "normal"),
		SettingsFile:     getEnv("SETTINGS_FILE", "settings.json"),
		DedupWindow:      getDuration("DEDUP_WINDOW", 2*time.Second),
		DeliveryTimeout:  getDuration("DELIVERY_TIMEOUT", 30*time.Second),
		ScannerDevice:    os.Getenv("SCANNER_DEVICE"),
		PocketBaseURL:    os.Getenv("POCKETBASE_URL"),
		PocketBaseToken:  os.Getenv("POCKETBASE_TOKEN"),
		KafkaBrokers:     splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "scan-events"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		AuthorizedChatID: os.Getenv("AUTHORIZED_CHAT_ID"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
	}, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// getDuration parses a Go duration, falling back on empty or invalid input
func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		logrus.WithFields(logrus.Fields{
			"key":     key,
			"value":   raw,
			"default": fallback,
		}).Warn("invalid duration, using default")
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
