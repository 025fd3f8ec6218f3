package config

import "time"

// DefaultBackendURL is the project hosting the intake cloud functions.
const DefaultBackendURL = "https://us-central1-gemini-med-lit-review.cloudfunctions.net"

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   5 * time.Minute,
			MaxBodyBytes:   10 << 20,
			AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		},
		Backend: BackendConfig{
			BaseURL: DefaultBackendURL,
			Prefix:  "dha-",
		},
		Session: SessionConfig{
			IdleTTL:       2 * time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Log: LogConfig{Level: "info"},
		Redis: RedisConfig{
			TTL: 10 * time.Minute,
		},
		Kafka: KafkaConfig{
			Topic: "intake-events",
		},
		Database: DatabaseConfig{
			NotifyChannel: "intake_ready",
		},
	}
}
