package config

import "time"

// Config is the top-level service configuration, corresponding to intake.yml.
type Config struct {
	Server   ServerConfig   `yaml:"server" koanf:"server"`
	Backend  BackendConfig  `yaml:"backend" koanf:"backend"`
	Session  SessionConfig  `yaml:"session" koanf:"session"`
	Log      LogConfig      `yaml:"log" koanf:"log"`
	Redis    RedisConfig    `yaml:"redis" koanf:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka" koanf:"kafka"`
	Database DatabaseConfig `yaml:"database" koanf:"database"`
}

type ServerConfig struct {
	Host           string        `yaml:"host" koanf:"host"`
	Port           int           `yaml:"port" koanf:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout" koanf:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" koanf:"write_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes" koanf:"max_body_bytes"`
	AllowedOrigins []string      `yaml:"allowed_origins" koanf:"allowed_origins"`
}

// BackendConfig locates the cloud functions. Function URLs are built as
// BaseURL + "/" + Prefix + name.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url" koanf:"base_url"`
	Prefix  string        `yaml:"prefix" koanf:"prefix"`
	Timeout time.Duration `yaml:"timeout" koanf:"timeout"`
}

type SessionConfig struct {
	IdleTTL       time.Duration `yaml:"idle_ttl" koanf:"idle_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval" koanf:"sweep_interval"`
	MessageCap    int           `yaml:"message_cap" koanf:"message_cap"`
}

type LogConfig struct {
	Level string `yaml:"level" koanf:"level"`
}

// RedisConfig enables the patient lookup cache when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr" koanf:"addr"`
	Password string        `yaml:"password" koanf:"password"`
	DB       int           `yaml:"db" koanf:"db"`
	TTL      time.Duration `yaml:"ttl" koanf:"ttl"`
}

// KafkaConfig enables intake event publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" koanf:"brokers"`
	Topic   string   `yaml:"topic" koanf:"topic"`
}

// DatabaseConfig enables Postgres NOTIFY of completed intakes when URL is set.
type DatabaseConfig struct {
	URL           string `yaml:"url" koanf:"url"`
	NotifyChannel string `yaml:"notify_channel" koanf:"notify_channel"`
}
