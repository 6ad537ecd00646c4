// Package config provides configuration management for the emailsieve service.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"
)

// Transport names accepted by delivery.transport.
const (
	TransportSMTP   = "smtp"
	TransportSES    = "ses"
	TransportStdout = "stdout"
)

// SESSecretEnv is the only place the SES secret access key may come from.
const SESSecretEnv = "SIEVE_DELIVERY_SES_SECRET_ACCESS_KEY"

// AdminSecretEnv holds an admin API signing secret as <secret_id>:<base64_secret>.
// Further secrets go in AdminSecretEnv_1, AdminSecretEnv_2, ...
const AdminSecretEnv = "SIEVE_ADMIN_SECRET"

// ServiceConfig holds configuration for the emailsieve service.
type ServiceConfig struct {
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	Database DatabaseConfig `mapstructure:"database"`
	Rules    RulesConfig    `mapstructure:"rules"`
}

// SMTPConfig configures the inbound SMTP/LMTP listener.
type SMTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	Domain          string        `mapstructure:"domain"`
	LMTP            bool          `mapstructure:"lmtp"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

// HTTPConfig configures the admin HTTP API. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// GRPCConfig configures the gRPC health service. Port 0 disables it.
type GRPCConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DeliveryConfig selects and configures the forwarding transport.
type DeliveryConfig struct {
	Transport string      `mapstructure:"transport"`
	Relay     RelayConfig `mapstructure:"relay"`
	SES       SESConfig   `mapstructure:"ses"`
}

// RelayConfig configures forwarding through an SMTP relay.
type RelayConfig struct {
	Addr string `mapstructure:"addr"`
	HELO string `mapstructure:"helo"`
}

// SESConfig configures forwarding through Amazon SES.
// The secret access key is read from SESSecretEnv only.
type SESConfig struct {
	Region          string `mapstructure:"region"`
	Sender          string `mapstructure:"sender"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"-"`
}

// DatabaseConfig configures the decision journal. An empty URL disables it.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// RulesConfig locates the routing rules file.
type RulesConfig struct {
	File string `mapstructure:"file"`
}

// DefaultServiceConfig returns configuration with default values.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		SMTP: SMTPConfig{
			Addr:            "0.0.0.0:2525",
			Domain:          "localhost",
			MaxMessageBytes: 25 << 20,
			ReadTimeout:     60 * time.Second,
			WriteTimeout:    60 * time.Second,
		},
		HTTP: HTTPConfig{Addr: "127.0.0.1:8080"},
		GRPC: GRPCConfig{Host: "127.0.0.1", Port: 50051},
		Delivery: DeliveryConfig{
			Transport: TransportSMTP,
			Relay:     RelayConfig{Addr: "127.0.0.1:25", HELO: "localhost"},
		},
		Database: DatabaseConfig{URL: "sqlite://./data/emailsieve.db"},
		Rules:    RulesConfig{File: "./rules.yaml"},
	}
}

// SESSecret reads the SES secret access key from the environment.
func SESSecret() string {
	return strings.TrimSpace(os.Getenv(SESSecretEnv))
}

// AdminSecrets reads the admin API signing secrets from the environment.
// Several secrets may be valid at once so keys can be rotated.
// An empty map leaves the admin API unauthenticated.
func AdminSecrets() (map[string][]byte, error) {
	secrets := make(map[string][]byte)

	add := func(key, val string) error {
		secretID, decoded, err := ParseSecretWithID(val)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if _, exists := secrets[secretID]; exists {
			return fmt.Errorf("duplicate secret_id '%s' found in environment variables (check %s and %s_* for conflicts)", secretID, AdminSecretEnv, AdminSecretEnv)
		}
		secrets[secretID] = decoded
		return nil
	}

	if val := os.Getenv(AdminSecretEnv); val != "" {
		if err := add(AdminSecretEnv, val); err != nil {
			return nil, err
		}
	}
	for i := 1; ; i++ {
		key := fmt.Sprintf("%s_%d", AdminSecretEnv, i)
		val := os.Getenv(key)
		if val == "" {
			break
		}
		if err := add(key, val); err != nil {
			return nil, err
		}
	}

	return secrets, nil
}

// ParseSecretWithID parses the <secret_id>:<base64_secret> format.
// Secret ID must be 32 hex chars (a UUID without hyphens).
func ParseSecretWithID(envValue string) (secretID string, secret []byte, err error) {
	parts := strings.SplitN(strings.TrimSpace(envValue), ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}

	secretID = parts[0]
	if len(secretID) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars (UUID without hyphens)")
	}
	for _, c := range secretID {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", nil, fmt.Errorf("secret_id must be hex chars only")
		}
	}

	secret, err = base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if len(secret) < 32 {
		return "", nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(secret))
	}

	return secretID, secret, nil
}

// validateConfig checks listener ports, size limits, timeouts and transport settings.
func validateConfig(cfg *ServiceConfig) error {
	if cfg.SMTP.Addr == "" {
		return fmt.Errorf("smtp.addr must not be empty")
	}
	if cfg.SMTP.MaxMessageBytes <= 0 {
		return fmt.Errorf("smtp.max_message_bytes must be positive, got %d", cfg.SMTP.MaxMessageBytes)
	}
	if cfg.SMTP.ReadTimeout <= 0 || cfg.SMTP.WriteTimeout <= 0 {
		return fmt.Errorf("smtp timeouts must be positive, got read=%v write=%v", cfg.SMTP.ReadTimeout, cfg.SMTP.WriteTimeout)
	}
	if cfg.GRPC.Port < 0 || cfg.GRPC.Port > 65535 {
		return fmt.Errorf("grpc.port must be between 0 and 65535, got %d", cfg.GRPC.Port)
	}

	switch cfg.Delivery.Transport {
	case TransportSMTP:
		if cfg.Delivery.Relay.Addr == "" {
			return fmt.Errorf("delivery.relay.addr is required for the smtp transport")
		}
	case TransportSES:
		if cfg.Delivery.SES.Region == "" {
			return fmt.Errorf("delivery.ses.region is required for the ses transport")
		}
		if cfg.Delivery.SES.AccessKeyID != "" && cfg.Delivery.SES.SecretAccessKey == "" {
			return fmt.Errorf("delivery.ses.access_key_id set without %s", SESSecretEnv)
		}
	case TransportStdout:
	default:
		return fmt.Errorf("delivery.transport must be one of smtp, ses, stdout, got %q", cfg.Delivery.Transport)
	}
	return nil
}
