package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP
	HTTPPort string

	// Postgres
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int32

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// External lookups (geofence, beacon, wifi geolocation) share one bound.
	LookupTimeout time.Duration

	// Wi-Fi geolocation capability
	WifiLookupURL string

	// Live-state mirror
	LiveStateChannelSize int

	// Auth
	AuthCacheTTLSeconds int
	WebhookTokens       []string

	// Third-party integrations
	Solis  SolisConfig
	Switch SwitchConfig
}

// SolisConfig carries the inverter API credentials. Passed explicitly to the
// client, never read from the environment at call time.
type SolisConfig struct {
	APIID     string
	APISecret string
	BaseURL   string
	DefaultSN string
}

// SwitchConfig carries the EMQX publish-API credentials for the smart switch.
type SwitchConfig struct {
	URL      string
	Username string
	Password string
	Topic    string
}

func Load() *Config {
	return &Config{
		HTTPPort:             getEnv("HTTP_PORT", "8001"),
		DBHost:               getEnv("DB_HOST", "localhost"),
		DBPort:               getEnv("DB_PORT", "5432"),
		DBUser:               getEnv("DB_USER", "geofleet_user"),
		DBPassword:           getEnv("DB_PASSWORD", "geofleet_password"),
		DBName:               getEnv("DB_NAME", "geofleet"),
		DBMaxConns:           int32(getEnvInt("DB_MAX_CONNS", 15)),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		LookupTimeout:        time.Duration(getEnvInt("LOOKUP_TIMEOUT_MS", 3000)) * time.Millisecond,
		WifiLookupURL:        getEnv("WIFI_LOOKUP_URL", ""),
		LiveStateChannelSize: getEnvInt("LIVE_STATE_CHANNEL_SIZE", 10000),
		AuthCacheTTLSeconds:  getEnvInt("AUTH_CACHE_TTL_SECONDS", 300),
		WebhookTokens:        strings.Split(getEnv("WEBHOOK_TOKENS", ""), ","),
		Solis: SolisConfig{
			APIID:     getEnv("SOLIS_API_ID", ""),
			APISecret: getEnv("SOLIS_API_SECRET", ""),
			BaseURL:   getEnv("SOLIS_BASE_URL", ""),
			DefaultSN: getEnv("SOLIS_INVERTER_SN", ""),
		},
		Switch: SwitchConfig{
			URL:      getEnv("SWITCH_API_URL", ""),
			Username: getEnv("SWITCH_API_USER", ""),
			Password: getEnv("SWITCH_API_PASS", ""),
			Topic:    getEnv("SWITCH_TOPIC", "zigbee2mqtt/smart_switch/set"),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
