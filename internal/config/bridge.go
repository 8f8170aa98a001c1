package config

import (
	"os"
	"time"
)

// BridgeConfig tunes the card terminal integration. The server only
// reports these values back to the terminal on poll; timing itself is
// the terminal's job.
type BridgeConfig struct {
	PollInterval time.Duration
	QRCodeTTL    time.Duration
	TerminalID   string
}

func LoadBridgeConfig() *BridgeConfig {
	return &BridgeConfig{
		PollInterval: getEnvAsDuration("BRIDGE_POLL_INTERVAL", 2*time.Second),
		QRCodeTTL:    getEnvAsDuration("BRIDGE_QR_TTL", 5*time.Minute),
		TerminalID:   getEnv("BRIDGE_TERMINAL_ID", "TILL-1"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
