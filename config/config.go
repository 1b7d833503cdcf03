package config

import (
	"os"
	"strconv"
)

// Config holds server-level settings read from the environment.
type Config struct {
	Port               string
	DBConnectionString string
	TransportDBURL     string
	JWTSecret          string
	CORSAllowOrigins   string
}

// WhatsAppSettings is the opaque settings object handed to the gateway
// and transport. ProxyURL is a secret: it reaches the transport only and
// is never echoed in events or responses.
type WhatsAppSettings struct {
	Enabled                 bool
	DeviceName              string
	StealthMode             bool
	TypingDelayMinSeconds   int
	TypingDelayMaxSeconds   int
	ReconnectBackoffSeconds int
	ProxyURL                string
}

// Load reads server configuration from the environment.
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8000"),
		DBConnectionString: getEnv("DATABASE_URL", ""),
		TransportDBURL:     getEnv("TRANSPORT_DATABASE_URL", ""),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		CORSAllowOrigins:   getEnv("CORS_ALLOW_ORIGINS", ""),
	}
}

// LoadWhatsAppSettings reads the messaging-channel settings from the
// environment.
func LoadWhatsAppSettings() WhatsAppSettings {
	return WhatsAppSettings{
		Enabled:                 getEnv("WHATSAPP_ENABLED", "true") == "true",
		DeviceName:              getEnv("WHATSAPP_DEVICE_NAME", "DX Connect"),
		StealthMode:             getEnv("WHATSAPP_STEALTH_MODE", "false") == "true",
		TypingDelayMinSeconds:   getEnvAsInt("WHATSAPP_TYPING_DELAY_MIN", 0),
		TypingDelayMaxSeconds:   getEnvAsInt("WHATSAPP_TYPING_DELAY_MAX", 0),
		ReconnectBackoffSeconds: getEnvAsInt("WHATSAPP_RECONNECT_BACKOFF", 15),
		ProxyURL:                getEnv("WHATSAPP_PROXY_URL", ""),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}
