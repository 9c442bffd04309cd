package constants

import "time"

const ServiceName = "moderation-service"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout       = 10 * time.Second
	DefaultClassifierTimeout = 5 * time.Second
	DefaultFetchTimeout      = 30 * time.Second
)

const (
	CacheKeyPrefixDedup   = "dedup:"
	CacheKeyPrefixVerdict = "verdict:"
)

const (
	DefaultInputTopic  = "chat_updates"
	DefaultOutputTopic = "moderation_events"
)

const (
	DefaultMongoDBName = "chatguard"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultDedupTTLSeconds  = 3600
	DefaultDedupMaxEntries  = 100000
	DefaultVerdictCacheTTL  = 24 * time.Hour
	DefaultPositiveThresh   = 0.5
	DefaultFetchMaxBytes    = 5 * 1024 * 1024
	DefaultFetchMaxRedirect = 5
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

const (
	FallbackAllow  = "allow"
	FallbackDeny   = "deny"
	FallbackReject = "reject"
	FallbackFail   = "fail"
)

const (
	StorageMongoDB  = "mongodb"
	StoragePostgres = "postgres"
)

const (
	DedupBackendMemory = "memory"
	DedupBackendRedis  = "redis"
)

const (
	BackendHuggingFace = "huggingface"
	BackendOpenAI      = "openai"
)

const (
	SentimentPolicyMajority = "majority"
	SentimentPolicyFirst    = "first"
)

const (
	ExemptionSourceConfig   = "config"
	ExemptionSourcePostgres = "postgres"
)

// ConfigTargetExemption addresses config update events at the exemption rules.
const ConfigTargetExemption = "exemption"

const (
	CollectionGroups    = "groups"
	CollectionChecks    = "checks"
	CollectionURLChecks = "url_checks"
)

const (
	DefaultChatTitle = "Без названия"
	AlertSubject     = "⚠️ Обнаружено токсичное сообщение"
	TestEmailSubject = "Тестовое письмо"
	TestEmailBody    = "Если вы это читаете, отправка работает."
)
