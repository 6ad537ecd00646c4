package cmd

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bigcats-cc/email-sieve/internal/core/config"
	"github.com/bigcats-cc/email-sieve/internal/core/logging"
	"github.com/bigcats-cc/email-sieve/internal/rules"
)

// Version is the emailsieve release.
const Version = "0.1.0"

var (
	configFile string
	rulesFile  string
	dbURL      string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:          "emailsieve",
	Short:        "emailsieve mail routing rule engine",
	Long:         `emailsieve receives mail over SMTP or LMTP and forwards or rejects each message according to an ordered list of declarative rules.`,
	Version:      Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&rulesFile, "rules", "", "routing rules file (overrides rules.file)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, text)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger from the persistent flags.
func newLogger(w io.Writer) (*logrus.Logger, error) {
	return logging.New(logLevel, logFormat, w)
}

// loadServiceConfig loads the service config and applies flag overrides.
func loadServiceConfig() (*config.ServiceConfig, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if rulesFile != "" {
		cfg.Rules.File = rulesFile
	}
	if dbURL != "" {
		cfg.Database.URL = dbURL
	}
	return cfg, nil
}

// loadEngine reads and validates the routing rules at path.
func loadEngine(path string) (*rules.Engine, error) {
	cfg, err := config.LoadRules(path, config.DefaultPredicates())
	if err != nil {
		return nil, err
	}
	engine, err := rules.NewEngine(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid rules in %s: %w", path, err)
	}
	return engine, nil
}
