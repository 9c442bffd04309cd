package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"chatguard/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyClassifierDefaults(&cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout_seconds", 15)
	viper.SetDefault("server.write_timeout_seconds", 60)

	viper.SetDefault("storage.type", constants.StorageMongoDB)
	viper.SetDefault("database.mongodb.database", constants.DefaultMongoDBName)
	viper.SetDefault("database.postgres.sslmode", "disable")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("deduplication.backend", constants.DedupBackendMemory)
	viper.SetDefault("deduplication.ttl_seconds", constants.DefaultDedupTTLSeconds)
	viper.SetDefault("deduplication.max_entries", constants.DefaultDedupMaxEntries)
	viper.SetDefault("deduplication.on_redis_error", constants.FallbackAllow)

	viper.SetDefault("aggregation.sentiment_policy", constants.SentimentPolicyMajority)

	viper.SetDefault("exemption.source", constants.ExemptionSourceConfig)
	viper.SetDefault("exemption.on_error", constants.FallbackAllow)
	viper.SetDefault("exemption.reload.interval_seconds", 60)

	viper.SetDefault("notification.smtp.port", 587)
	viper.SetDefault("notification.smtp.starttls", true)

	viper.SetDefault("webfetch.rps", 2.0)
	viper.SetDefault("webfetch.timeout", constants.DefaultFetchTimeout)
	viper.SetDefault("webfetch.max_bytes", constants.DefaultFetchMaxBytes)
	viper.SetDefault("webfetch.user_agent", "chatguard/1.0 (+moderation)")

	viper.SetDefault("broker.kafka.input_topic", constants.DefaultInputTopic)
	viper.SetDefault("broker.kafka.output_topic", constants.DefaultOutputTopic)
	viper.SetDefault("broker.kafka.retry.multiplier", 2.0)
}

func bindEnvVariables() {
	viper.BindEnv("broker.type", "BROKER_TYPE")
	viper.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	viper.BindEnv("broker.kafka.input_topic", "BROKER_KAFKA_INPUT_TOPIC")
	viper.BindEnv("broker.kafka.output_topic", "BROKER_KAFKA_OUTPUT_TOPIC")
	viper.BindEnv("broker.kafka.dlq_topic", "BROKER_KAFKA_DLQ_TOPIC")
	viper.BindEnv("broker.kafka.config_update_topic", "BROKER_KAFKA_CONFIG_UPDATE_TOPIC")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	viper.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("classifiers.huggingface.token", "CLASSIFIERS_HF_TOKEN", "HF_API_TOKEN")
	viper.BindEnv("classifiers.openai.token", "CLASSIFIERS_OPENAI_TOKEN", "OPENAI_API_KEY")

	viper.BindEnv("notification.smtp.host", "NOTIFICATION_SMTP_HOST")
	viper.BindEnv("notification.smtp.username", "NOTIFICATION_SMTP_USERNAME")
	viper.BindEnv("notification.smtp.password", "NOTIFICATION_SMTP_PASSWORD", "EMAIL_PASSWORD")
	viper.BindEnv("notification.smtp.from", "NOTIFICATION_SMTP_FROM")
	viper.BindEnv("notification.debug_chat_id", "NOTIFICATION_DEBUG_CHAT_ID")

	viper.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
}

func applyEnvOverrides(cfg *Config) {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}
}

// applyClassifierDefaults fills per-classifier fields a config file usually omits.
func applyClassifierDefaults(cfg *Config) {
	for i := range cfg.Classifiers.Definitions {
		def := &cfg.Classifiers.Definitions[i]
		if def.Backend == "" {
			def.Backend = constants.BackendHuggingFace
		}
		if def.Threshold == 0 {
			def.Threshold = constants.DefaultPositiveThresh
		}
		if def.Timeout == 0 {
			def.Timeout = constants.DefaultClassifierTimeout
		}
		if def.Scope == "" {
			def.Scope = "message"
			if def.Kind == "toxicity" {
				def.Scope = "segment"
			}
		}
		if len(def.PositiveLabels) == 0 {
			def.PositiveLabels = defaultPositiveLabels(def.Kind)
		}
	}
}

func defaultPositiveLabels(kind string) []string {
	switch kind {
	case "toxicity":
		return []string{"toxic", "LABEL_1"}
	case "spam":
		return []string{"spam", "LABEL_1"}
	case "review":
		return []string{"review", "LABEL_1"}
	case "sentiment":
		return []string{"positive", "POSITIVE", "LABEL_1"}
	default:
		return nil
	}
}
