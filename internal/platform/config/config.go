package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process-level configuration. Environment-driven so main
// stays lean; secrets fall back to dev-only placeholders.
type Server struct {
	Addr          string
	DatabaseURL   string
	RedisURL      string
	KafkaBrokers  []string
	AuditTopic    string
	JWTSigningKey string
	AdminToken    string
}

// RequestTimeout bounds each HTTP request including its storage transaction.
var RequestTimeout = 30 * time.Second

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("BROKERGATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	auditTopic := os.Getenv("BROKERGATE_AUDIT_TOPIC")
	if auditTopic == "" {
		auditTopic = "brokergate.audit"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default - must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	adminToken := os.Getenv("ADMIN_TOKEN")
	if adminToken == "" {
		adminToken = "dev-admin-token"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return Server{
		Addr:          addr,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		KafkaBrokers:  brokers,
		AuditTopic:    auditTopic,
		JWTSigningKey: jwtSigningKey,
		AdminToken:    adminToken,
	}
}
