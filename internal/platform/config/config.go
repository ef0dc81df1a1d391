package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Addr           string
	Environment    string
	AllowedOrigins []string
	StoreDriver    string
	DatabaseURL    string
	DBMaxConns     int
	DBMinConns     int
	DBConnectWait  time.Duration
	RedisURL       string

	JWTSecret        string
	SessionTTL       time.Duration
	OTPTTL           time.Duration
	AdminIdentityKey string
	AdminEmail       string
	AdminName        string

	EmailFrom        string
	EmailEnabled     bool
	EmailDisableSend bool
	HRMailbox        string
	SMTPHost         string
	SMTPPort         int
	SMTPUser         string
	SMTPPassword     string
	SMTPUseTLS       bool

	LLMProvider       string
	LLMBaseURL        string
	LLMAPIKey         string
	LLMModel          string
	EmbeddingModel    string
	EmbeddingDim      int
	LLMTimeout        time.Duration
	LLMMaxRetries     int
	ChunkSize         int
	ChunkOverlap      int
	RetrievalTopK     int
	RetrievalMinScore float64
	AnswerCacheSize   int
	PolicyInboxDir    string

	EventsBackend    string
	KafkaBrokers     []string
	KafkaTopic       string
	RabbitMQURL      string
	RabbitMQExchange string

	RunMigrations      bool
	RunSeed            bool
	MaxBodyBytes       int64
	RateLimitPerMinute int
	OTPCleanupInterval time.Duration
	MetricsEnabled     bool
	OTLPEndpoint       string
	LogLevel           string
	LogFile            string
}

// Load reads the optional YAML file named by CONFIG_FILE and lets environment variables override it.
func Load() (Config, error) {
	k := koanf.New(".")
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	l := loader{k: k}

	return Config{
		Addr:           l.str("APP_ADDR", "app.addr", ":8080"),
		Environment:    l.str("APP_ENV", "app.env", "development"),
		AllowedOrigins: splitList(l.str("ALLOWED_ORIGINS", "app.allowed_origins", "")),
		StoreDriver:    l.str("STORE_DRIVER", "store.driver", StorePostgres),
		DatabaseURL:    l.str("DATABASE_URL", "store.database_url", ""),
		DBMaxConns:     l.integer("DB_MAX_CONNS", "store.max_conns", 10),
		DBMinConns:     l.integer("DB_MIN_CONNS", "store.min_conns", 2),
		DBConnectWait:  l.duration("DB_CONNECT_WAIT", "store.connect_wait", 30*time.Second),
		RedisURL:       l.str("REDIS_URL", "store.redis_url", ""),

		JWTSecret:        l.str("JWT_SECRET", "auth.jwt_secret", ""),
		SessionTTL:       l.duration("SESSION_TTL", "auth.session_ttl", 8*time.Hour),
		OTPTTL:           l.duration("OTP_TTL", "auth.otp_ttl", 10*time.Minute),
		AdminIdentityKey: l.str("ADMIN_IDENTITY_KEY", "auth.admin_identity_key", "hr"),
		AdminEmail:       l.str("ADMIN_EMAIL", "auth.admin_email", "hr@example.com"),
		AdminName:        l.str("ADMIN_NAME", "auth.admin_name", "HR Desk"),

		EmailFrom:        l.str("EMAIL_FROM", "email.from", "no-reply@example.com"),
		EmailEnabled:     l.boolean("EMAIL_ENABLED", "email.enabled", false),
		EmailDisableSend: l.boolean("EMAIL_DISABLE_SEND", "email.disable_send", false),
		HRMailbox:        l.str("HR_MAILBOX", "email.hr_mailbox", "hr@example.com"),
		SMTPHost:         l.str("SMTP_HOST", "email.smtp_host", ""),
		SMTPPort:         l.integer("SMTP_PORT", "email.smtp_port", 587),
		SMTPUser:         l.str("SMTP_USER", "email.smtp_user", ""),
		SMTPPassword:     l.str("SMTP_PASSWORD", "email.smtp_password", ""),
		SMTPUseTLS:       l.boolean("SMTP_USE_TLS", "email.smtp_use_tls", true),

		LLMProvider:       l.str("LLM_PROVIDER", "llm.provider", "openai"),
		LLMBaseURL:        l.str("LLM_BASE_URL", "llm.base_url", "https://api.openai.com/v1"),
		LLMAPIKey:         l.str("LLM_API_KEY", "llm.api_key", ""),
		LLMModel:          l.str("LLM_MODEL", "llm.model", "gpt-4o-mini"),
		EmbeddingModel:    l.str("EMBEDDING_MODEL", "llm.embedding_model", "text-embedding-3-small"),
		EmbeddingDim:      l.integer("EMBEDDING_DIM", "llm.embedding_dim", 256),
		LLMTimeout:        l.duration("LLM_TIMEOUT", "llm.timeout", 20*time.Second),
		LLMMaxRetries:     l.integer("LLM_MAX_RETRIES", "llm.max_retries", 3),
		ChunkSize:         l.integer("CHUNK_SIZE", "retrieval.chunk_size", 1500),
		ChunkOverlap:      l.integer("CHUNK_OVERLAP", "retrieval.chunk_overlap", 400),
		RetrievalTopK:     l.integer("RETRIEVAL_TOP_K", "retrieval.top_k", 6),
		RetrievalMinScore: l.float("RETRIEVAL_MIN_SCORE", "retrieval.min_score", 0.2),
		AnswerCacheSize:   l.integer("ANSWER_CACHE_SIZE", "retrieval.answer_cache_size", 512),
		PolicyInboxDir:    l.str("POLICY_INBOX_DIR", "retrieval.inbox_dir", ""),

		EventsBackend:    l.str("EVENTS_BACKEND", "events.backend", "none"),
		KafkaBrokers:     splitList(l.str("KAFKA_BROKERS", "events.kafka_brokers", "")),
		KafkaTopic:       l.str("KAFKA_TOPIC", "events.kafka_topic", "hr.notifications"),
		RabbitMQURL:      l.str("RABBITMQ_URL", "events.rabbitmq_url", ""),
		RabbitMQExchange: l.str("RABBITMQ_EXCHANGE", "events.rabbitmq_exchange", "hr.notifications"),

		RunMigrations:      l.boolean("RUN_MIGRATIONS", "app.run_migrations", true),
		RunSeed:            l.boolean("RUN_SEED", "app.run_seed", true),
		MaxBodyBytes:       int64(l.integer("MAX_BODY_BYTES", "app.max_body_bytes", 1048576)),
		RateLimitPerMinute: l.integer("RATE_LIMIT_PER_MINUTE", "app.rate_limit_per_minute", 60),
		OTPCleanupInterval: l.duration("OTP_CLEANUP_INTERVAL", "auth.otp_cleanup_interval", time.Hour),
		MetricsEnabled:     l.boolean("METRICS_ENABLED", "app.metrics_enabled", true),
		OTLPEndpoint:       l.str("OTEL_EXPORTER_OTLP_ENDPOINT", "app.otlp_endpoint", ""),
		LogLevel:           l.str("LOG_LEVEL", "app.log_level", "info"),
		LogFile:            l.str("LOG_FILE", "app.log_file", ""),
	}, nil
}

type loader struct {
	k *koanf.Koanf
}

func (l loader) str(env, key, fallback string) string {
	if l.k.Exists(key) {
		fallback = l.k.String(key)
	}
	return getEnv(env, fallback)
}

func (l loader) boolean(env, key string, fallback bool) bool {
	if l.k.Exists(key) {
		fallback = l.k.Bool(key)
	}
	return getEnvBool(env, fallback)
}

func (l loader) integer(env, key string, fallback int) int {
	if l.k.Exists(key) {
		fallback = l.k.Int(key)
	}
	return getEnvInt(env, fallback)
}

func (l loader) float(env, key string, fallback float64) float64 {
	if l.k.Exists(key) {
		fallback = l.k.Float64(key)
	}
	return getEnvFloat(env, fallback)
}

func (l loader) duration(env, key string, fallback time.Duration) time.Duration {
	if l.k.Exists(key) {
		fallback = l.k.Duration(key)
	}
	return getEnvDuration(env, fallback)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case StoreMemory:
		if c.IsProduction() {
			return fmt.Errorf("STORE_DRIVER=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q", StorePostgres, StoreMemory)
	}
	if c.IsProduction() {
		if len(strings.TrimSpace(c.JWTSecret)) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
		if c.EmailDisableSend {
			return fmt.Errorf("EMAIL_DISABLE_SEND must be false in production")
		}
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.EmailEnabled && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST must be set when EMAIL_ENABLED is true")
	}
	if c.OTPTTL <= 0 {
		return fmt.Errorf("OTP_TTL must be positive")
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be smaller than CHUNK_SIZE")
	}
	if c.RetrievalTopK <= 0 {
		return fmt.Errorf("RETRIEVAL_TOP_K must be positive")
	}
	if c.RetrievalMinScore < 0 || c.RetrievalMinScore > 1 {
		return fmt.Errorf("RETRIEVAL_MIN_SCORE must be between 0 and 1")
	}
	switch c.LLMProvider {
	case "openai", "local":
	default:
		return fmt.Errorf("LLM_PROVIDER must be openai or local")
	}
	switch c.EventsBackend {
	case "none", "":
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS must be set when EVENTS_BACKEND=kafka")
		}
	case "rabbitmq":
		if c.RabbitMQURL == "" {
			return fmt.Errorf("RABBITMQ_URL must be set when EVENTS_BACKEND=rabbitmq")
		}
	default:
		return fmt.Errorf("EVENTS_BACKEND must be none, kafka or rabbitmq")
	}
	return nil
}
