package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bigcats-cc/email-sieve/internal/core/auth"
	"github.com/bigcats-cc/email-sieve/internal/core/config"
	"github.com/bigcats-cc/email-sieve/internal/core/db"
	"github.com/bigcats-cc/email-sieve/internal/core/delivery"
	"github.com/bigcats-cc/email-sieve/internal/core/pipeline"
	"github.com/bigcats-cc/email-sieve/internal/core/server"
	"github.com/bigcats-cc/email-sieve/internal/rules"
)

const shutdownGrace = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the SMTP/LMTP listener and admin servers",
	Long: `Start the mail listener together with the gRPC health service and the HTTP
admin API. SIGHUP reloads the rules file; an invalid file keeps the previous rules.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "SMTP/LMTP listen address (overrides smtp.addr)")
	serveCmd.Flags().Bool("lmtp", false, "speak LMTP instead of SMTP (overrides smtp.lmtp)")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	cfg, err := loadServiceConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.SMTP.Addr, _ = cmd.Flags().GetString("addr")
	}
	if cmd.Flags().Changed("lmtp") {
		cfg.SMTP.LMTP, _ = cmd.Flags().GetBool("lmtp")
	}

	engine, err := loadEngine(cfg.Rules.File)
	if err != nil {
		return err
	}
	for _, w := range rules.Warnings(engine.Config()) {
		logger.WithField("rules", cfg.Rules.File).Warn(w)
	}

	var journal *db.Journal
	if cfg.Database.URL != "" {
		database, err := db.Open(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()

		if err := requireMigrated(database); err != nil {
			return err
		}
		if journal, err = db.NewJournal(database); err != nil {
			return fmt.Errorf("failed to load queries: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	forwarder, err := delivery.New(ctx, cfg.Delivery, cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("failed to configure delivery: %w", err)
	}

	// Typed nils must not reach the interface-typed parameters.
	var recorder pipeline.Journal
	var store server.DecisionStore
	if journal != nil {
		recorder, store = journal, journal
	}

	processor := pipeline.New(engine,
		delivery.NewExecutor(forwarder, logger),
		delivery.NewFallback(forwarder, logger),
		recorder, logger)

	smtpServer := server.NewSMTPServer(cfg.SMTP, processor, logger)
	var grpcServer *server.GRPCServer
	if cfg.GRPC.Port != 0 {
		grpcServer = server.NewGRPCServer(cfg.GRPC)
	}
	var httpServer *server.HTTPServer
	if cfg.HTTP.Addr != "" {
		secrets, err := config.AdminSecrets()
		if err != nil {
			return fmt.Errorf("failed to load admin secrets: %w", err)
		}
		api := server.NewAPI(processor, store, cfg.SMTP.MaxMessageBytes, logger)
		if len(secrets) > 0 {
			api.RequireKeys(auth.NewAuthenticator(secrets))
		} else {
			logger.Warn("no admin secrets configured, admin API is unauthenticated")
		}
		httpServer = server.NewHTTPServer(cfg.HTTP.Addr, api.Handler())
	}

	errChan := make(chan error, 3)
	go func() { errChan <- smtpServer.Start(ctx) }()
	if grpcServer != nil {
		go func() { errChan <- grpcServer.Start(ctx) }()
		grpcServer.SetServing(true)
	}
	if httpServer != nil {
		go func() { errChan <- httpServer.Start(ctx) }()
	}

	logger.WithFields(logrus.Fields{
		"version":   Version,
		"addr":      cfg.SMTP.Addr,
		"lmtp":      cfg.SMTP.LMTP,
		"transport": forwarder.Name(),
		"rules":     len(engine.Config().Rules),
		"journal":   journal != nil,
	}).Info("emailsieve started")

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var runErr error
loop:
	for {
		select {
		case err := <-errChan:
			runErr = err
			break loop
		case <-hup:
			reloadRules(engine, cfg.Rules.File, logger)
		case <-ctx.Done():
			logger.Info("shutting down gracefully")
			break loop
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	var errs []error
	if grpcServer != nil {
		errs = append(errs, grpcServer.Shutdown(shutdownCtx))
	}
	if httpServer != nil {
		errs = append(errs, httpServer.Shutdown(shutdownCtx))
	}
	errs = append(errs, smtpServer.Shutdown(shutdownCtx), runErr)
	return errors.Join(errs...)
}

// reloadRules swaps in the rules at path, keeping the active set on error.
func reloadRules(engine *rules.Engine, path string, logger logrus.FieldLogger) {
	cfg, err := config.LoadRules(path, config.DefaultPredicates())
	if err == nil {
		err = engine.Reload(cfg)
	}
	if err != nil {
		logger.WithError(err).WithField("rules", path).Error("rules reload failed, keeping previous rules")
		return
	}
	for _, w := range rules.Warnings(cfg) {
		logger.WithField("rules", path).Warn(w)
	}
	logger.WithFields(logrus.Fields{"rules": path, "count": len(cfg.Rules)}).Info("rules reloaded")
}

// requireMigrated fails when the journal schema has pending migrations.
func requireMigrated(database *sqlx.DB) error {
	statuses, err := db.MigrateStatus(database)
	if err != nil {
		return fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			return fmt.Errorf("migration %s not applied - run 'emailsieve migrate up' first", s.ID)
		}
	}
	return nil
}
