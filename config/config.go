package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ServiceName    = "sweetshop-apiserver"
	ServiceVersion = "0.1.0"

	// DefaultTokenTTL is the validity window of issued bearer tokens.
	DefaultTokenTTL = 7 * 24 * time.Hour
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	ServerPort   int             `yaml:"server_port"`
	LogLevel     string          `yaml:"log_level"`
	StoreBackend string          `yaml:"store_backend"`
	Database     DatabaseConfig  `yaml:"database"`
	Auth         AuthConfig      `yaml:"auth"`
	Storage      StorageConfig   `yaml:"storage"`
	MQ           MQConfig        `yaml:"mq"`
	Telemetry    TelemetryConfig `yaml:"telemetry"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"db_name"`
	UseSSL   bool   `yaml:"use_ssl"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`

	// AllowAdminSignup lets registration requests claim the admin role.
	// It is off by default, so "role": "admin" on POST /auth/register is
	// answered with 403 and admins are promoted out of band. The
	// development config turns it on.
	AllowAdminSignup bool `yaml:"allow_admin_signup"`
}

type StorageConfig struct {
	Backend string      `yaml:"backend"`
	Minio   MinioConfig `yaml:"minio"`
	GCS     GCSConfig   `yaml:"gcs"`
	S3      S3Config    `yaml:"s3"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

type S3Config struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
}

type MQConfig struct {
	Backend  string         `yaml:"backend"`
	Channel  string         `yaml:"channel"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	PubSub   PubSubConfig   `yaml:"pubsub"`
	Kafka    KafkaConfig    `yaml:"kafka"`
}

type RabbitMQConfig struct {
	URL             string `yaml:"url"`
	QueueDurable    bool   `yaml:"queue_durable"`
	QueueAutoDelete bool   `yaml:"queue_auto_delete"`
	PrefetchCount   int    `yaml:"prefetch_count"`
}

type PubSubConfig struct {
	ProjectID          string `yaml:"project_id"`
	CredentialsFile    string `yaml:"credentials_file"`
	SubscriptionSuffix string `yaml:"subscription_suffix"`
}

type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	GroupID      string        `yaml:"group_id"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

type TelemetryConfig struct {
	OtelEndpoint   string `yaml:"otel_endpoint"`
	OtelAuthHeader string `yaml:"otel_auth_header"`
}

// Enabled reports whether an OTLP endpoint is configured.
func (t TelemetryConfig) Enabled() bool {
	return strings.TrimSpace(t.OtelEndpoint) != ""
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		ServerPort:   8080,
		LogLevel:     "info",
		StoreBackend: StorePostgres,
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "sweetshop",
			Password: "password",
			DBName:   "sweetshop_db",
		},
		Auth: AuthConfig{
			TokenTTL: DefaultTokenTTL,
		},
		Storage: StorageConfig{
			Backend: "none",
			S3:      S3Config{Region: "us-east-1"},
		},
		MQ: MQConfig{
			Backend: "none",
			Channel: "sweets.stock",
			PubSub:  PubSubConfig{SubscriptionSuffix: "-sub"},
			Kafka: KafkaConfig{
				GroupID:      "sweetshop-apiserver",
				BatchTimeout: 10 * time.Millisecond,
			},
		},
	}
}

// LoadConfig builds the configuration from defaults and environment variables.
func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	cfg := Default()
	applyEnv(&cfg)
	return cfg
}

// LoadFile reads a YAML configuration file and applies environment
// overrides on top of it. A missing file yields LoadConfig().
func LoadFile(path string) (Config, error) {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnv(&cfg)
			return cfg, nil
		}
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.ServerPort = getEnvInt("SERVER_PORT", cfg.ServerPort)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.StoreBackend = getEnv("STORE_BACKEND", cfg.StoreBackend)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnv("DB_NAME", cfg.Database.DBName)
	cfg.Database.UseSSL = getEnvBool("DB_USE_SSL", cfg.Database.UseSSL)

	cfg.Auth.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", cfg.Auth.JWTSecret))
	cfg.Auth.TokenTTL = getEnvDuration("JWT_TTL", cfg.Auth.TokenTTL)
	cfg.Auth.AllowAdminSignup = getEnvBool("AUTH_ALLOW_ADMIN_SIGNUP", cfg.Auth.AllowAdminSignup)

	cfg.Storage.Backend = getEnv("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.Minio.Endpoint = getEnv("MINIO_ENDPOINT", cfg.Storage.Minio.Endpoint)
	cfg.Storage.Minio.AccessKey = getEnv("MINIO_ACCESS_KEY", cfg.Storage.Minio.AccessKey)
	cfg.Storage.Minio.SecretKey = getEnv("MINIO_SECRET_KEY", cfg.Storage.Minio.SecretKey)
	cfg.Storage.Minio.Bucket = getEnv("MINIO_BUCKET", cfg.Storage.Minio.Bucket)
	cfg.Storage.Minio.UseSSL = getEnvBool("MINIO_USE_SSL", cfg.Storage.Minio.UseSSL)
	cfg.Storage.GCS.Bucket = getEnv("GCS_BUCKET", cfg.Storage.GCS.Bucket)
	cfg.Storage.GCS.ProjectID = getEnv("GCS_PROJECT_ID", cfg.Storage.GCS.ProjectID)
	cfg.Storage.GCS.CredentialsFile = getEnv("GCS_CREDENTIALS_FILE", cfg.Storage.GCS.CredentialsFile)
	cfg.Storage.S3.Region = getEnv("S3_REGION", cfg.Storage.S3.Region)
	cfg.Storage.S3.Endpoint = getEnv("S3_ENDPOINT", cfg.Storage.S3.Endpoint)
	cfg.Storage.S3.AccessKey = getEnv("S3_ACCESS_KEY", cfg.Storage.S3.AccessKey)
	cfg.Storage.S3.SecretKey = getEnv("S3_SECRET_KEY", cfg.Storage.S3.SecretKey)
	cfg.Storage.S3.Bucket = getEnv("S3_BUCKET", cfg.Storage.S3.Bucket)

	cfg.MQ.Backend = getEnv("MQ_BACKEND", cfg.MQ.Backend)
	cfg.MQ.Channel = getEnv("STOCK_EVENTS_CHANNEL", cfg.MQ.Channel)
	cfg.MQ.RabbitMQ.URL = getEnv("RABBITMQ_URL", cfg.MQ.RabbitMQ.URL)
	cfg.MQ.RabbitMQ.QueueDurable = getEnvBool("RABBITMQ_QUEUE_DURABLE", cfg.MQ.RabbitMQ.QueueDurable)
	cfg.MQ.RabbitMQ.PrefetchCount = getEnvInt("RABBITMQ_PREFETCH", cfg.MQ.RabbitMQ.PrefetchCount)
	cfg.MQ.PubSub.ProjectID = getEnv("PUBSUB_PROJECT_ID", cfg.MQ.PubSub.ProjectID)
	cfg.MQ.PubSub.CredentialsFile = getEnv("PUBSUB_CREDENTIALS_FILE", cfg.MQ.PubSub.CredentialsFile)
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.MQ.Kafka.Brokers = splitList(brokers)
	}

	cfg.Telemetry.OtelEndpoint = getEnv("OTEL_ENDPOINT", cfg.Telemetry.OtelEndpoint)
	cfg.Telemetry.OtelAuthHeader = getEnv("OTEL_AUTH_HEADER", cfg.Telemetry.OtelAuthHeader)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.Atoi(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := time.ParseDuration(strings.TrimSpace(valueStr))
		if err != nil || value <= 0 {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
