// dispatchd is the support-dispatch engine server: it wires the core
// component graph and exposes it over HTTP and WebSocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/config"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/core"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/dbstore"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configDir string

	root := &cobra.Command{
		Use:     "dispatchd",
		Short:   "Customer-support dispatch and conversation engine",
		Version: version.Full(),
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")

	root.AddCommand(newServeCmd(&configDir))
	root.AddCommand(newMigrateCmd(&configDir))
	root.AddCommand(newValidateConfigCmd(&configDir))
	return root
}

// loadEnv loads the .env file from the config directory, if present.
func loadEnv(log *zap.Logger, configDir string) {
	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Info("no .env file loaded, using existing environment", zap.String("path", envPath))
	} else {
		log.Info("loaded environment", zap.String("path", envPath))
	}
}

func newServeCmd(configDir *string) *cobra.Command {
	var httpPort string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dispatch engine and HTTP/WebSocket API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			loadEnv(log, *configDir)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Initialize(ctx, *configDir)
			if err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			deps := core.Deps{Config: cfg}
			var dbClient *dbstore.Client

			// Durable stores are wired in when database credentials are
			// present; otherwise the engine runs fully in-memory.
			if os.Getenv("DB_PASSWORD") != "" {
				dbCfg, err := dbstore.LoadConfigFromEnv()
				if err != nil {
					return fmt.Errorf("failed to load database config: %w", err)
				}
				dbClient, err = dbstore.NewClient(ctx, dbCfg)
				if err != nil {
					return fmt.Errorf("failed to connect to database: %w", err)
				}
				defer func() {
					if err := dbClient.Close(); err != nil {
						log.Warn("error closing database client", zap.Error(err))
					}
				}()
				log.Info("connected to PostgreSQL, durable stores enabled")

				deps.Store = dbstore.NewSessionStore(dbClient, nil, nil)
				deps.Profiles = dbstore.NewProfileStore(dbClient)
				deps.Archiver = dbstore.NewEvaluationStore(dbClient)
			} else {
				log.Info("no DB_PASSWORD set, running with in-memory stores")
			}

			engine, err := core.New(deps)
			if err != nil {
				return fmt.Errorf("failed to construct core: %w", err)
			}
			if err := engine.Start(ctx); err != nil {
				return fmt.Errorf("failed to start core: %w", err)
			}
			defer engine.Stop()

			hub := newWSHub(log)
			hub.Attach(engine.Bus())
			defer hub.Detach()

			srv := newServer(engine, hub, dbClient, cfg, log)
			return srv.run(ctx, ":"+httpPort)
		},
	}
	cmd.Flags().StringVar(&httpPort, "http-port", getEnv("HTTP_PORT", "8080"), "HTTP listen port")
	return cmd
}

func newMigrateCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			loadEnv(log, *configDir)

			dbCfg, err := dbstore.LoadConfigFromEnv()
			if err != nil {
				return fmt.Errorf("failed to load database config: %w", err)
			}
			client, err := dbstore.NewClient(cmd.Context(), dbCfg)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			defer func() { _ = client.Close() }()

			log.Info("migrations applied", zap.String("database", dbCfg.Database))
			return nil
		},
	}
}

func newValidateConfigCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate configuration, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Initialize(context.Background(), *configDir)
			if err != nil {
				return err
			}
			stats := cfg.Stats()
			fmt.Printf("configuration OK: %d escalation rules, %d scorecards, %d extra prompts, %d stealth profiles, %d knowledge seeds\n",
				stats.EscalationRules, stats.Scorecards, stats.Prompts, stats.StealthProfiles, stats.KnowledgeSeeds)
			return nil
		},
	}
}
