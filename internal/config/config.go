package config

import (
	"log"

	"gopkg.in/yaml.v3"

	"github.com/mohamadsalahdarwish/notication-system/pkg/config"
)

type Config struct {
	Server   config.ServerConfig   `yaml:"server"`
	DB       config.DBConfig       `yaml:"db"`
	MQ       config.MQConfig       `yaml:"mq"`
	Redis    config.RedisConfig    `yaml:"redis"`
	JWT      config.JWTConfig      `yaml:"jwt"`
	Presence config.PresenceConfig `yaml:"presence"`
	Ingest   config.IngestConfig   `yaml:"ingest"`
	Outbox   struct {
		MaxRetries     int `yaml:"max_retries"`
		IntervalMillis int `yaml:"interval_millis"`
		BatchSize      int `yaml:"batch_size"`
	} `yaml:"outbox"`
}

func Load() *Config {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var cfg Config
	cfgData, err := yaml.Marshal(cfgMap)
	if err != nil {
		log.Fatalf("failed to marshal config: %v", err)
	}
	if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	// Environment variables win over files.
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)

	if cfg.Presence.Backend == "" {
		cfg.Presence.Backend = "redis"
	}
	if cfg.Ingest.MaxRetries == 0 {
		cfg.Ingest.MaxRetries = 5
	}
	if cfg.Ingest.RetryTTLSeconds == 0 {
		cfg.Ingest.RetryTTLSeconds = 600
	}
	if cfg.Ingest.BackoffMillis == 0 {
		cfg.Ingest.BackoffMillis = 200
	}

	return &cfg
}
