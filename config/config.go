package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	Env               string `mapstructure:"ENV"`
	JWTSecret         string `mapstructure:"JWT_SECRET"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`

	// MongoDB.
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	DatabaseName string `mapstructure:"DATABASE_NAME"`
	DeviceStore  string `mapstructure:"DEVICE_STORE"`

	// Redis configuration.
	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisLockDB   int           `mapstructure:"REDIS_LOCK_DB"`
	RedisQueueDB  int           `mapstructure:"REDIS_QUEUE_DB"`
	LockBackend   string        `mapstructure:"LOCK_BACKEND"`
	LockTTL       time.Duration `mapstructure:"LOCK_TTL"`

	// Remote execution (AWS Systems Manager).
	AWSRegion           string `mapstructure:"AWS_REGION"`
	AWSInstanceID       string `mapstructure:"AWS_INSTANCE_ID"`
	SSMDocumentName     string `mapstructure:"SSM_DOCUMENT_NAME"`
	SSMExecutionTimeout int    `mapstructure:"SSM_EXECUTION_TIMEOUT"`

	// WireGuard layout on the remote host.
	WGClientDir       string `mapstructure:"WG_CLIENT_DIR"`
	WGTemplateCommand string `mapstructure:"WG_TEMPLATE_COMMAND"`

	// Provisioning policy.
	ProvisionTimeout    time.Duration `mapstructure:"PROVISION_TIMEOUT"`
	FetchTimeout        time.Duration `mapstructure:"FETCH_TIMEOUT"`
	PollInitialInterval time.Duration `mapstructure:"POLL_INITIAL_INTERVAL"`
	PollMaxInterval     time.Duration `mapstructure:"POLL_MAX_INTERVAL"`
	PollMaxQueryErrors  int           `mapstructure:"POLL_MAX_QUERY_ERRORS"`
	ProvisionAsync      bool          `mapstructure:"PROVISION_ASYNC"`
	StalePendingAfter   time.Duration `mapstructure:"STALE_PENDING_AFTER"`
	RecoveryInterval    time.Duration `mapstructure:"RECOVERY_INTERVAL"`
}

var AppConfig Config

func LoadConfig() {
	// A local .env file is optional; real environment variables win.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	// Set default values.
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("JWT_SECRET", "")
	viper.SetDefault("MAX_REQUESTS_PER_MIN", 100)
	viper.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	viper.SetDefault("DATABASE_NAME", "nomadpi")
	viper.SetDefault("DEVICE_STORE", "mongo")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_LOCK_DB", 0)
	viper.SetDefault("REDIS_QUEUE_DB", 1)
	viper.SetDefault("LOCK_BACKEND", "redis")
	viper.SetDefault("LOCK_TTL", "2m")
	viper.SetDefault("AWS_REGION", "us-east-1")
	viper.SetDefault("AWS_INSTANCE_ID", "")
	viper.SetDefault("SSM_DOCUMENT_NAME", "AWS-RunShellScript")
	viper.SetDefault("SSM_EXECUTION_TIMEOUT", 120)
	viper.SetDefault("WG_CLIENT_DIR", "/etc/wireguard/clients")
	viper.SetDefault("WG_TEMPLATE_COMMAND", "wg-quick generate-client-config")
	viper.SetDefault("PROVISION_TIMEOUT", "60s")
	viper.SetDefault("FETCH_TIMEOUT", "30s")
	viper.SetDefault("POLL_INITIAL_INTERVAL", "1s")
	viper.SetDefault("POLL_MAX_INTERVAL", "5s")
	viper.SetDefault("POLL_MAX_QUERY_ERRORS", 5)
	viper.SetDefault("PROVISION_ASYNC", false)
	viper.SetDefault("STALE_PENDING_AFTER", "10m")
	viper.SetDefault("RECOVERY_INTERVAL", "1m")

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}
