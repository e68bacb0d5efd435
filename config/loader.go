package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Load reads configuration from environment variables as raw strings
// Components handle validation and defaults during initialization
func Load() *Config {
	// Best-effort: a missing .env file is fine, real env vars win
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:         os.Getenv("SERVER_PORT"),
			Environment:  os.Getenv("SERVER_ENV"),
			CORSOrigin:   os.Getenv("CORS_ORIGIN"),
			ReadTimeout:  os.Getenv("SERVER_READ_TIMEOUT"),
			WriteTimeout: os.Getenv("SERVER_WRITE_TIMEOUT"),
		},
		Database: DatabaseConfig{
			Host:     os.Getenv("DB_HOST"),
			Port:     os.Getenv("DB_PORT"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			DBName:   os.Getenv("DB_NAME"),
			SSLMode:  os.Getenv("DB_SSLMODE"),
		},
		JWT: JWTConfig{
			AccessSecret:      os.Getenv("ACCESS_TOKEN_SECRET"),
			AccessExpiration:  os.Getenv("ACCESS_TOKEN_EXPIRATION"),
			RefreshSecret:     os.Getenv("REFRESH_TOKEN_SECRET"),
			RefreshExpiration: os.Getenv("REFRESH_TOKEN_EXPIRATION"),
		},
		ImageStore: ImageStoreConfig{
			Endpoint:  os.Getenv("IMAGE_STORE_ENDPOINT"),
			AccessKey: os.Getenv("IMAGE_STORE_ACCESS_KEY"),
			SecretKey: os.Getenv("IMAGE_STORE_SECRET_KEY"),
			Bucket:    os.Getenv("IMAGE_STORE_BUCKET"),
			UseSSL:    os.Getenv("IMAGE_STORE_USE_SSL"),
			BaseURL:   os.Getenv("IMAGE_STORE_BASE_URL"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       os.Getenv("REDIS_DB"),
		},
		RateLimit: RateLimitConfig{
			Enabled:        os.Getenv("RATE_LIMIT_ENABLED"),
			Capacity:       os.Getenv("RATE_LIMIT_CAPACITY"),
			RefillTokens:   os.Getenv("RATE_LIMIT_REFILL_TOKENS"),
			RefillInterval: os.Getenv("RATE_LIMIT_REFILL_INTERVAL"),
			TTL:            os.Getenv("RATE_LIMIT_TTL"),
		},
		Worker: WorkerConfig{
			ReconcileInterval: os.Getenv("WORKER_RECONCILE_INTERVAL"),
		},
		Logging: LoggingConfig{
			Level:       os.Getenv("LOG_LEVEL"),
			Format:      os.Getenv("LOG_FORMAT"),
			ServiceName: os.Getenv("SERVICE_NAME"),
		},
	}
}
