package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures everything the server needs at construction time. The chain
// identifier and contract address are explicit values resolved once here —
// components never consult a global "current network".
type Config struct {
	Addr        string
	PostgresDSN string
	Redis       RedisConfig
	Chain       ChainConfig
	Kafka       KafkaConfig
	Content     ContentConfig

	JWTSigningKey string

	// MaxDocumentBytes bounds uploaded KYC documents. Oversized files are a
	// validation error rejected before any side effect.
	MaxDocumentBytes int64
}

// ChainConfig locates the issuance contract and tunes transaction confirmation.
type ChainConfig struct {
	// RPCURL empty means dev mode: the server wires the in-memory ledger.
	RPCURL          string
	ChainID         uint64
	ContractAddress string
	// OperatorKey is the hex private key the adapter signs relayed writes with.
	OperatorKey    string
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MetadataTTL bounds staleness of cached content-store metadata.
	MetadataTTL time.Duration
}

type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

type ContentConfig struct {
	// GatewayURL resolves ipfs:// URIs; https:// URIs are fetched directly.
	GatewayURL string
	PublishURL string
	Timeout    time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		Addr:        envOr("BRICKVAULT_ADDR", ":8080"),
		PostgresDSN: os.Getenv("BRICKVAULT_POSTGRES_DSN"),
		Redis: RedisConfig{
			URL:          os.Getenv("BRICKVAULT_REDIS_URL"),
			PoolSize:     envInt("BRICKVAULT_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("BRICKVAULT_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("BRICKVAULT_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("BRICKVAULT_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("BRICKVAULT_REDIS_WRITE_TIMEOUT", 3*time.Second),
			MetadataTTL:  envDuration("BRICKVAULT_METADATA_TTL", 10*time.Minute),
		},
		Chain: ChainConfig{
			RPCURL:          os.Getenv("BRICKVAULT_CHAIN_RPC_URL"),
			ChainID:         uint64(envInt("BRICKVAULT_CHAIN_ID", 0)),
			ContractAddress: os.Getenv("BRICKVAULT_CONTRACT_ADDRESS"),
			OperatorKey:     os.Getenv("BRICKVAULT_OPERATOR_KEY"),
			ConfirmTimeout:  envDuration("BRICKVAULT_CONFIRM_TIMEOUT", 90*time.Second),
			PollInterval:    envDuration("BRICKVAULT_POLL_INTERVAL", 2*time.Second),
		},
		Kafka: KafkaConfig{
			AuditTopic: envOr("BRICKVAULT_AUDIT_TOPIC", "brickvault.audit"),
		},
		Content: ContentConfig{
			GatewayURL: envOr("BRICKVAULT_CONTENT_GATEWAY", "https://ipfs.io/ipfs/"),
			PublishURL: os.Getenv("BRICKVAULT_CONTENT_PUBLISH_URL"),
			Timeout:    envDuration("BRICKVAULT_CONTENT_TIMEOUT", 10*time.Second),
		},
		JWTSigningKey:    envOr("BRICKVAULT_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		MaxDocumentBytes: int64(envInt("BRICKVAULT_MAX_DOCUMENT_BYTES", 10<<20)),
	}

	if brokers := os.Getenv("BRICKVAULT_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitNonEmpty(brokers)
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if part := s[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}
