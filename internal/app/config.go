package app

import (
	"kenchat/internal/config"
	"kenchat/internal/repository/db"

	"github.com/redis/go-redis/v9"
)

// Config holds all application dependencies and configuration
type Config struct {
	// Database interface for data persistence
	DB db.Database
	// Redis client, used by the rate limiter
	Redis *redis.Client
	// Centralized application configuration
	AppConfig *config.AppConfig
}

// NewConfig creates a new application configuration
func NewConfig(database db.Database, rdb *redis.Client, appConfig *config.AppConfig) *Config {
	return &Config{
		DB:        database,
		Redis:     rdb,
		AppConfig: appConfig,
	}
}

func (c *Config) ModelsConfig() *config.ModelsConfig {
	return c.AppConfig.Models
}
