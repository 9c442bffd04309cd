package config

import (
	"fmt"
	"net/url"
	"strings"

	"chatguard/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

var (
	validKinds  = map[string]bool{"toxicity": true, "spam": true, "review": true, "sentiment": true}
	validScopes = map[string]bool{"segment": true, "message": true}
)

func ValidateStatic(cfg *Config) error {
	var errs []error

	validators := []func() error{
		func() error { return validateServer(cfg.Server) },
		func() error { return validateBroker(cfg.Broker) },
		func() error { return validateDatabase(cfg.Database) },
		func() error { return validateStorage(cfg.Storage, cfg.Database) },
		func() error { return validateDeduplication(cfg.Deduplication, cfg.Database) },
		func() error { return validateClassifiers(cfg.Classifiers) },
		func() error { return validateAggregation(cfg.Aggregation) },
		func() error { return validateExemption(cfg.Exemption, cfg.Storage) },
	}

	for _, validate := range validators {
		if err := validate(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	switch cfg.Type {
	case "":
		return nil
	case "kafka":
		return validateKafka(cfg.Kafka)
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka)", cfg.Type),
		}
	}
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.Retry.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval > 0 && cfg.Retry.InitialInterval > 0 && cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Retry.Multiplier <= 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host != "" || cfg.Postgres.Port > 0 {
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	}

	if cfg.Redis.Host != "" || cfg.Redis.Port > 0 {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	if cfg.MongoDB.URI != "" {
		if err := validateMongoDB(cfg.MongoDB); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateMongoDB(cfg MongoDBConfig) error {
	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
		}
	}

	if cfg.Database == "" {
		return &ValidationError{
			Field:   "database.mongodb.database",
			Message: "MongoDB database name is required",
		}
	}

	return nil
}

func validateStorage(cfg StorageConfig, db DatabaseConfig) error {
	switch cfg.Type {
	case constants.StorageMongoDB:
		if db.MongoDB.URI == "" {
			return &ValidationError{
				Field:   "database.mongodb.uri",
				Message: "MongoDB URI is required when storage.type is mongodb",
			}
		}
	case constants.StoragePostgres:
		if db.Postgres.Host == "" {
			return &ValidationError{
				Field:   "database.postgres.host",
				Message: "PostgreSQL host is required when storage.type is postgres",
			}
		}
	default:
		return &ValidationError{
			Field:   "storage.type",
			Message: fmt.Sprintf("unknown storage type: %s (valid: mongodb, postgres)", cfg.Type),
		}
	}
	return nil
}

func validateDeduplication(cfg DeduplicationConfig, db DatabaseConfig) error {
	switch cfg.Backend {
	case constants.DedupBackendMemory:
		if cfg.MaxEntries <= 0 {
			return &ValidationError{
				Field:   "deduplication.max_entries",
				Message: "max_entries must be positive for the memory backend",
			}
		}
	case constants.DedupBackendRedis:
		if db.Redis.Host == "" {
			return &ValidationError{
				Field:   "database.redis.host",
				Message: "Redis host is required when deduplication.backend is redis",
			}
		}
	default:
		return &ValidationError{
			Field:   "deduplication.backend",
			Message: fmt.Sprintf("unknown dedup backend: %s (valid: memory, redis)", cfg.Backend),
		}
	}

	if cfg.TTLSeconds <= 0 {
		return &ValidationError{
			Field:   "deduplication.ttl_seconds",
			Message: "TTL must be positive",
		}
	}

	validOnError := map[string]bool{
		constants.FallbackAllow: true, constants.FallbackReject: true, constants.FallbackFail: true,
	}
	if cfg.OnRedisError != "" && !validOnError[strings.ToLower(cfg.OnRedisError)] {
		return &ValidationError{
			Field:   "deduplication.on_redis_error",
			Message: fmt.Sprintf("invalid on_redis_error value: %s (valid: allow, reject, fail)", cfg.OnRedisError),
		}
	}

	return nil
}

func validateClassifiers(cfg ClassifiersConfig) error {
	seen := make(map[string]bool, len(cfg.Definitions))

	for i, def := range cfg.Definitions {
		field := fmt.Sprintf("classifiers.definitions[%d]", i)

		if def.Name == "" {
			return &ValidationError{Field: field + ".name", Message: "classifier name is required"}
		}
		if seen[def.Name] {
			return &ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate classifier name: %s", def.Name)}
		}
		seen[def.Name] = true

		if !validKinds[def.Kind] {
			return &ValidationError{
				Field:   field + ".kind",
				Message: fmt.Sprintf("unknown classifier kind: %s (valid: toxicity, spam, review, sentiment)", def.Kind),
			}
		}
		if !validScopes[def.Scope] {
			return &ValidationError{
				Field:   field + ".scope",
				Message: fmt.Sprintf("unknown scope: %s (valid: segment, message)", def.Scope),
			}
		}

		switch def.Backend {
		case constants.BackendHuggingFace:
			if _, err := url.ParseRequestURI(def.URL); err != nil {
				return &ValidationError{Field: field + ".url", Message: "a valid inference URL is required"}
			}
		case constants.BackendOpenAI:
		default:
			return &ValidationError{
				Field:   field + ".backend",
				Message: fmt.Sprintf("unknown backend: %s (valid: huggingface, openai)", def.Backend),
			}
		}

		if def.Threshold <= 0 || def.Threshold >= 1 {
			return &ValidationError{Field: field + ".threshold", Message: "threshold must be in (0, 1)"}
		}
		if def.Timeout <= 0 {
			return &ValidationError{Field: field + ".timeout", Message: "timeout must be positive"}
		}
	}

	if cfg.Cache.Enabled && cfg.Cache.TTLSeconds < 0 {
		return &ValidationError{Field: "classifiers.cache.ttl_seconds", Message: "TTL must be non-negative"}
	}

	return nil
}

func validateAggregation(cfg AggregationConfig) error {
	switch cfg.SentimentPolicy {
	case constants.SentimentPolicyMajority, constants.SentimentPolicyFirst:
		return nil
	default:
		return &ValidationError{
			Field:   "aggregation.sentiment_policy",
			Message: fmt.Sprintf("unknown sentiment policy: %s (valid: majority, first)", cfg.SentimentPolicy),
		}
	}
}

func validateExemption(cfg ExemptionConfig, storage StorageConfig) error {
	switch cfg.Source {
	case constants.ExemptionSourceConfig:
	case constants.ExemptionSourcePostgres:
		if storage.Type != constants.StoragePostgres {
			return &ValidationError{
				Field:   "exemption.source",
				Message: "postgres exemption rules require storage.type postgres",
			}
		}
	default:
		return &ValidationError{
			Field:   "exemption.source",
			Message: fmt.Sprintf("unknown exemption source: %s (valid: config, postgres)", cfg.Source),
		}
	}

	if cfg.OnError != "" && cfg.OnError != constants.FallbackAllow && cfg.OnError != constants.FallbackDeny {
		return &ValidationError{
			Field:   "exemption.on_error",
			Message: fmt.Sprintf("invalid on_error value: %s (valid: allow, deny)", cfg.OnError),
		}
	}

	for i, rule := range cfg.Rules {
		if strings.TrimSpace(rule.Expression) == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("exemption.rules[%d].expression", i),
				Message: "expression cannot be empty",
			}
		}
	}

	return nil
}
