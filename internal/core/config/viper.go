package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	v := viper.New()
	setDefaults(v, DefaultServiceConfig())

	// Bind environment variables with SIEVE_ prefix
	v.SetEnvPrefix("SIEVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Security check: reject secrets in config files
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &ServiceConfig{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Delivery.SES.SecretAccessKey = SESSecret()

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper, d *ServiceConfig) {
	v.SetDefault("smtp.addr", d.SMTP.Addr)
	v.SetDefault("smtp.domain", d.SMTP.Domain)
	v.SetDefault("smtp.lmtp", d.SMTP.LMTP)
	v.SetDefault("smtp.max_message_bytes", d.SMTP.MaxMessageBytes)
	v.SetDefault("smtp.read_timeout", d.SMTP.ReadTimeout.String())
	v.SetDefault("smtp.write_timeout", d.SMTP.WriteTimeout.String())
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("grpc.host", d.GRPC.Host)
	v.SetDefault("grpc.port", d.GRPC.Port)
	v.SetDefault("delivery.transport", d.Delivery.Transport)
	v.SetDefault("delivery.relay.addr", d.Delivery.Relay.Addr)
	v.SetDefault("delivery.relay.helo", d.Delivery.Relay.HELO)
	v.SetDefault("delivery.ses.region", d.Delivery.SES.Region)
	v.SetDefault("delivery.ses.sender", d.Delivery.SES.Sender)
	v.SetDefault("delivery.ses.access_key_id", d.Delivery.SES.AccessKeyID)
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("rules.file", d.Rules.File)
}

// validateNoSecretsInConfig enforces environment-only secrets.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("delivery.ses.secret_access_key") || v.InConfig("secret_access_key") {
		return fmt.Errorf("SES secrets not allowed in config files (use %s environment variable)", SESSecretEnv)
	}
	if v.InConfig("http.admin_secret") || v.InConfig("admin_secret") {
		return fmt.Errorf("admin API secrets not allowed in config files (use %s environment variable)", AdminSecretEnv)
	}
	return nil
}
