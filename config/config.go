package config

// Config contains all configuration grouped by domain
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	ImageStore ImageStoreConfig
	Redis      RedisConfig
	RateLimit  RateLimitConfig
	Worker     WorkerConfig
	Logging    LoggingConfig
}

// All config structs use string fields only - packages handle conversion during initialization
type ServerConfig struct {
	Port         string
	Environment  string
	CORSOrigin   string
	ReadTimeout  string
	WriteTimeout string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	AccessSecret      string
	AccessExpiration  string
	RefreshSecret     string
	RefreshExpiration string
}

type ImageStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    string
	BaseURL   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       string
}

type RateLimitConfig struct {
	Enabled        string
	Capacity       string
	RefillTokens   string
	RefillInterval string
	TTL            string
}

type WorkerConfig struct {
	ReconcileInterval string
}

type LoggingConfig struct {
	Level       string
	Format      string
	ServiceName string
}
