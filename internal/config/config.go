package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Qdrant     QdrantConfig
	LLM        LLMConfig
	Embedding  EmbeddingConfig
	Cache      CacheConfig
	Debate     DebateConfig
	Archive    ArchiveConfig
	Kafka      KafkaConfig
	Monitoring MonitoringConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	Mode         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Addr returns the host:port pair the HTTP server binds to.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

type QdrantConfig struct {
	Host            string
	Port            string
	APIKey          string
	UseTLS          bool
	Collection      string
	VectorSize      int
	Distance        string
	Timeout         time.Duration
	JanitorInterval time.Duration
}

type LLMConfig struct {
	BaseURL         string
	APIKey          string
	Model           string
	Temperature     float64
	MaxTokens       int
	Timeout         time.Duration
	CostPer1KTokens float64
}

type EmbeddingConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
	CacheSize int
}

type CacheConfig struct {
	Enabled             bool
	SimilarityThreshold float64
	TTL                 time.Duration
	MaxPromptLength     int
	SearchLimit         int
}

type DebateConfig struct {
	Rounds           int
	MinAgentDelay    time.Duration
	TurnPacing       time.Duration
	PollSlice        time.Duration
	StartCooldown    time.Duration
	MemoryWindow     int
	TranscriptMaxLen int64
	MemoryMaxLen     int64
	StanceDrift      float64
	RosterPath       string
}

type ArchiveConfig struct {
	DatabaseURL string
}

// Enabled reports whether session archival to Postgres is configured.
func (a *ArchiveConfig) Enabled() bool {
	return a.DatabaseURL != ""
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether the event mirror has brokers to talk to.
func (k *KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type MonitoringConfig struct {
	MetricsEnabled bool
	MetricsPath    string
	LogLevel       string
	LogFormat      string
}

func Load() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("PORT", "7080"),
			Mode:         getEnv("GIN_MODE", "release"),
			ReadTimeout:  getDurationEnv("READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDurationEnv("IDLE_TIMEOUT", 120*time.Second),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			PoolSize: getIntEnv("REDIS_POOL_SIZE", 10),
			Timeout:  getDurationEnv("REDIS_TIMEOUT", 5*time.Second),
		},
		Qdrant: QdrantConfig{
			Host:            getEnv("QDRANT_HOST", "localhost"),
			Port:            getEnv("QDRANT_PORT", "6333"),
			APIKey:          getEnv("QDRANT_API_KEY", ""),
			UseTLS:          getBoolEnv("QDRANT_USE_TLS", false),
			Collection:      getEnv("QDRANT_COLLECTION", "debate_responses"),
			VectorSize:      getIntEnv("QDRANT_VECTOR_SIZE", 1536),
			Distance:        getEnv("QDRANT_DISTANCE", "Cosine"),
			Timeout:         getDurationEnv("QDRANT_TIMEOUT", 10*time.Second),
			JanitorInterval: getDurationEnv("QDRANT_JANITOR_INTERVAL", 5*time.Minute),
		},
		LLM: LLMConfig{
			BaseURL:         getEnv("LLM_BASE_URL", "http://localhost:11434/v1"),
			APIKey:          getEnv("LLM_API_KEY", ""),
			Model:           getEnv("LLM_MODEL", "llama3.2"),
			Temperature:     getFloatEnv("LLM_TEMPERATURE", 0.7),
			MaxTokens:       getIntEnv("LLM_MAX_TOKENS", 512),
			Timeout:         getDurationEnv("LLM_TIMEOUT", 60*time.Second),
			CostPer1KTokens: getFloatEnv("LLM_COST_PER_1K_TOKENS", 0.002),
		},
		Embedding: EmbeddingConfig{
			BaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:11434/v1"),
			APIKey:    getEnv("EMBEDDING_API_KEY", ""),
			Model:     getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			Dimension: getIntEnv("EMBEDDING_DIMENSION", 1536),
			Timeout:   getDurationEnv("EMBEDDING_TIMEOUT", 15*time.Second),
			CacheSize: getIntEnv("EMBEDDING_CACHE_SIZE", 1000),
		},
		Cache: CacheConfig{
			Enabled:             getBoolEnv("CACHE_ENABLED", true),
			SimilarityThreshold: getFloatEnv("CACHE_SIMILARITY_THRESHOLD", 0.85),
			TTL:                 getDurationEnv("CACHE_TTL", 24*time.Hour),
			MaxPromptLength:     getIntEnv("CACHE_MAX_PROMPT_LENGTH", 8192),
			SearchLimit:         getIntEnv("CACHE_SEARCH_LIMIT", 3),
		},
		Debate: DebateConfig{
			Rounds:           getIntEnv("DEBATE_ROUNDS", 3),
			MinAgentDelay:    getDurationEnv("DEBATE_MIN_AGENT_DELAY", 2*time.Second),
			TurnPacing:       getDurationEnv("DEBATE_TURN_PACING", 1200*time.Millisecond),
			PollSlice:        getDurationEnv("DEBATE_POLL_SLICE", 200*time.Millisecond),
			StartCooldown:    getDurationEnv("DEBATE_START_COOLDOWN", 100*time.Millisecond),
			MemoryWindow:     getIntEnv("DEBATE_MEMORY_WINDOW", 6),
			TranscriptMaxLen: int64(getIntEnv("DEBATE_TRANSCRIPT_MAXLEN", 512)),
			MemoryMaxLen:     int64(getIntEnv("DEBATE_MEMORY_MAXLEN", 128)),
			StanceDrift:      getFloatEnv("DEBATE_STANCE_DRIFT", 0.02),
			RosterPath:       getEnv("DEBATE_ROSTER_PATH", "agents.yaml"),
		},
		Archive: ArchiveConfig{
			DatabaseURL: getEnv("DATABASE_URL", ""),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvSlice("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC", "agora.debate.events"),
		},
		Monitoring: MonitoringConfig{
			MetricsEnabled: getBoolEnv("METRICS_ENABLED", true),
			MetricsPath:    getEnv("METRICS_PATH", "/metrics"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "text"),
		},
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return defaultValue
}
