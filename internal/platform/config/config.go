package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RedisConfig holds connection settings for the Redis-backed stores
// (one-time codes, verified voting sessions, eligibility cache).
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds settings for the audit event pipeline.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// Server captures process-level configuration.
type Server struct {
	Addr          string
	PostgresURL   string
	Redis         RedisConfig
	Kafka         KafkaConfig
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string

	// Voting protocol windows. OTPTTL matches the fixed text sent in the
	// notification message ("valid for 5 minutes").
	OTPTTL     time.Duration
	OTPDigits  int
	SessionTTL time.Duration

	// PhotoDir is where live verification photos are written. Empty keeps
	// them in memory, which only suits development.
	PhotoDir string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:          envOr("SABHA_ADDR", ":8080"),
		PostgresURL:   os.Getenv("SABHA_POSTGRES_URL"),
		JWTSigningKey: envOr("SABHA_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:     envOr("SABHA_JWT_ISSUER", "sabha"),
		JWTAudience:   envOr("SABHA_JWT_AUDIENCE", "sabha-portal"),
		OTPTTL:        envDurationOr("SABHA_OTP_TTL", 5*time.Minute),
		OTPDigits:     envIntOr("SABHA_OTP_DIGITS", 6),
		SessionTTL:    envDurationOr("SABHA_SESSION_TTL", 10*time.Minute),
		PhotoDir:      os.Getenv("SABHA_PHOTO_DIR"),
		Redis: RedisConfig{
			URL:          os.Getenv("SABHA_REDIS_URL"),
			PoolSize:     envIntOr("SABHA_REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("SABHA_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDurationOr("SABHA_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDurationOr("SABHA_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDurationOr("SABHA_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
	}
	if brokers := os.Getenv("SABHA_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka = KafkaConfig{
			Brokers:    strings.Split(brokers, ","),
			AuditTopic: envOr("SABHA_AUDIT_TOPIC", "sabha.audit.events"),
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
