package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Storage        StorageConfig        `mapstructure:"storage"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Deduplication  DeduplicationConfig  `mapstructure:"deduplication"`
	Classifiers    ClassifiersConfig    `mapstructure:"classifiers"`
	Aggregation    AggregationConfig    `mapstructure:"aggregation"`
	Exemption      ExemptionConfig      `mapstructure:"exemption"`
	Notification   NotificationConfig   `mapstructure:"notification"`
	Telegram       TelegramConfig       `mapstructure:"telegram"`
	WebFetch       WebFetchConfig       `mapstructure:"webfetch"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port                int `mapstructure:"port"`
	ReadTimeoutSeconds  int `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig `mapstructure:"postgres"`
	Redis         RedisConfig    `mapstructure:"redis"`
	MongoDB       MongoDBConfig  `mapstructure:"mongodb"`
	RunMigrations bool           `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// StorageConfig selects the backend for check records and chat registrations.
type StorageConfig struct {
	Type string `mapstructure:"type"` // "mongodb" or "postgres"
}

type BrokerConfig struct {
	Type  string      `mapstructure:"type"` // "kafka" or "" to disable
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers           []string    `mapstructure:"brokers"`
	GroupID           string      `mapstructure:"group_id"`
	InputTopic        string      `mapstructure:"input_topic"`
	OutputTopic       string      `mapstructure:"output_topic"`
	DLQTopic          string      `mapstructure:"dlq_topic"`
	ConfigUpdateTopic string      `mapstructure:"config_update_topic"`
	Retry             RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DeduplicationConfig struct {
	Backend      string `mapstructure:"backend"` // "memory" or "redis"
	TTLSeconds   int    `mapstructure:"ttl_seconds"`
	MaxEntries   int    `mapstructure:"max_entries"`
	OnRedisError string `mapstructure:"on_redis_error"` // "allow", "reject", "fail"
}

type ClassifiersConfig struct {
	HuggingFace HuggingFaceConfig  `mapstructure:"huggingface"`
	OpenAI      OpenAIConfig       `mapstructure:"openai"`
	Cache       VerdictCacheConfig `mapstructure:"cache"`
	Retry       ClassifierRetry    `mapstructure:"retry"`
	Definitions []ClassifierConfig `mapstructure:"definitions"`
}

type HuggingFaceConfig struct {
	Token string `mapstructure:"token"`
}

type OpenAIConfig struct {
	Token   string `mapstructure:"token"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

type VerdictCacheConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	TTLSeconds int  `mapstructure:"ttl_seconds"`
}

type ClassifierRetry struct {
	Enabled         bool          `mapstructure:"enabled"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// ClassifierConfig is the raw form of a classifier descriptor.
type ClassifierConfig struct {
	Name           string        `mapstructure:"name"`
	Kind           string        `mapstructure:"kind"`  // toxicity, spam, review, sentiment
	Scope          string        `mapstructure:"scope"` // segment, message
	Backend        string        `mapstructure:"backend"`
	URL            string        `mapstructure:"url"`
	PositiveLabels []string      `mapstructure:"positive_labels"`
	Threshold      float64       `mapstructure:"threshold"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type AggregationConfig struct {
	SentimentPolicy string `mapstructure:"sentiment_policy"` // "majority" or "first"
}

type ExemptionConfig struct {
	Source  string                `mapstructure:"source"` // "config" or "postgres"
	OnError string                `mapstructure:"on_error"`
	Rules   []ExemptionRuleConfig `mapstructure:"rules"`
	Reload  ReloadConfig          `mapstructure:"reload"`
}

type ExemptionRuleConfig struct {
	Name       string `mapstructure:"name"`
	Expression string `mapstructure:"expression"`
}

type ReloadConfig struct {
	IntervalSeconds       int `mapstructure:"interval_seconds"`
	JitterMaxMilliseconds int `mapstructure:"jitter_max_milliseconds"`
}

type NotificationConfig struct {
	SMTP        SMTPConfig `mapstructure:"smtp"`
	DebugChatID int64      `mapstructure:"debug_chat_id"`
	KafkaEvents bool       `mapstructure:"kafka_events"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	StartTLS bool   `mapstructure:"starttls"`
}

type TelegramConfig struct {
	BotToken    string `mapstructure:"bot_token"`
	APIEndpoint string `mapstructure:"api_endpoint"`
}

type WebFetchConfig struct {
	RPS       float64       `mapstructure:"rps"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
	MaxBytes  int64         `mapstructure:"max_bytes"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
