package config

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

type Config struct {
	DatabaseURL  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	S3Endpoint   string
	AIAPIKey     string
	EmbedModel   string
	EmbedDim     int
	Port         string
	JWTSecret    string
	CORSOrigins  []string

	LogLevel slog.Level
	LogFile  string

	RedisAddr    string
	RedisDB      int
	AMQPURL      string
	AMQPExchange string

	Workers        int
	QuotaTiersFile string

	Ingestion Ingestion
	Tiers     map[models.QuotaTier]models.TierLimits
}

// Ingestion groups the pipeline tunables.
type Ingestion struct {
	Limits     Limits
	Queue      Queue
	Storage    Storage
	Scraping   Scraping
	Processing Processing
}

type Limits struct {
	MaxBatchSize       int
	MaxQAPairs         int
	MaxTextLength      int
	MinTextLength      int
	PresignedURLExpiry time.Duration
	MaxRetries         int
	JobTimeout         time.Duration
}

type Queue struct {
	PollInterval time.Duration
	BatchSize    int
	LockTimeout  time.Duration
	SweepEvery   time.Duration
}

type Storage struct {
	UploadsPrefix string
	TempPrefix    string
}

type Scraping struct {
	UserAgent        string
	Timeout          time.Duration
	MaxContentLength int64
	DelayBetween     time.Duration
}

type Processing struct {
	ChunkSize          int
	ChunkOverlap       int
	SupportedMimeTypes []string
}

// DefaultSupportedMimeTypes are the uploadable document types.
var DefaultSupportedMimeTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"text/plain",
	"text/markdown",
	"text/csv",
	"text/html",
	"application/json",
	"application/xml",
}

// DefaultIngestion returns the pipeline defaults.
func DefaultIngestion() Ingestion {
	return Ingestion{
		Limits: Limits{
			MaxBatchSize:       50,
			MaxQAPairs:         1000,
			MaxTextLength:      10 * 1024 * 1024,
			MinTextLength:      10,
			PresignedURLExpiry: 15 * time.Minute,
			MaxRetries:         models.DefaultMaxRetries,
			JobTimeout:         25 * time.Minute,
		},
		Queue: Queue{
			PollInterval: time.Second,
			BatchSize:    10,
			LockTimeout:  30 * time.Minute,
			SweepEvery:   time.Minute,
		},
		Storage: Storage{
			UploadsPrefix: "uploads",
			TempPrefix:    "temp",
		},
		Scraping: Scraping{
			UserAgent:        "Contexta-Bot/1.0",
			Timeout:          30 * time.Second,
			MaxContentLength: 10 * 1024 * 1024,
			DelayBetween:     time.Second,
		},
		Processing: Processing{
			ChunkSize:          1000,
			ChunkOverlap:       200,
			SupportedMimeTypes: DefaultSupportedMimeTypes,
		},
	}
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	ing := DefaultIngestion()
	ing.Limits.MaxBatchSize = getEnvInt("INGESTION_MAX_BATCH_SIZE", ing.Limits.MaxBatchSize)
	ing.Limits.PresignedURLExpiry = getEnvDuration("INGESTION_PRESIGNED_URL_EXPIRY", ing.Limits.PresignedURLExpiry)
	ing.Queue.PollInterval = getEnvDuration("INGESTION_POLL_INTERVAL", ing.Queue.PollInterval)
	ing.Queue.BatchSize = getEnvInt("INGESTION_POLL_BATCH_SIZE", ing.Queue.BatchSize)
	ing.Queue.LockTimeout = getEnvDuration("INGESTION_LOCK_TIMEOUT", ing.Queue.LockTimeout)
	ing.Queue.SweepEvery = getEnvDuration("INGESTION_SWEEP_INTERVAL", ing.Queue.SweepEvery)
	ing.Scraping.UserAgent = getEnv("INGESTION_SCRAPE_USER_AGENT", ing.Scraping.UserAgent)
	ing.Scraping.Timeout = getEnvDuration("INGESTION_SCRAPE_TIMEOUT", ing.Scraping.Timeout)
	ing.Scraping.MaxContentLength = getEnvInt64("INGESTION_SCRAPE_MAX_BYTES", ing.Scraping.MaxContentLength)
	ing.Processing.ChunkSize = getEnvInt("INGESTION_CHUNK_SIZE", ing.Processing.ChunkSize)
	ing.Processing.ChunkOverlap = getEnvInt("INGESTION_CHUNK_OVERLAP", ing.Processing.ChunkOverlap)

	cfg := &Config{
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		AwsAccessKey:   getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:   getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:      getEnv("AWS_REGION", "us-east-2"),
		BucketName:     getEnv("BUCKET_NAME", "contexta-docs"),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		AIAPIKey:       getEnv("GEMINI_API_KEY", ""),
		EmbedModel:     getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:       getEnvInt("EMBED_DIM", 768),
		Port:           getEnv("PORT", "8080"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		CORSOrigins:    splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		LogLevel:       ParseLogLevel(getEnv("LOG_LEVEL", "INFO")),
		LogFile:        getEnv("LOG_FILE", "/tmp/contexta-ingest.log"),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "ingestion.events"),
		Workers:        getEnvInt("WORKERS", 4),
		QuotaTiersFile: getEnv("QUOTA_TIERS_FILE", ""),
		Ingestion:      ing,
	}

	tiers, err := LoadTiers(cfg.QuotaTiersFile)
	if err != nil {
		log.Printf("WARN: %v, using default tiers", err)
		tiers = models.DefaultTierLimits()
	}
	cfg.Tiers = tiers

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvInt64(key string, def int64) int64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseLogLevel maps a level name to slog; unknown names mean INFO.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
