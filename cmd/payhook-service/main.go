package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	_ "payhook/cmd/payhook-service/docs"
	"payhook/internal/config"
	"payhook/internal/constants"
	"payhook/internal/logger"
	"payhook/pkg/logging"
)

var (
	configFile string
)

// @title           Payhook API
// @version         1.0
// @description     Receives Stripe and GoCardless webhooks, reconciles them into the CRM and exposes the processing ledger

// @contact.name   API Support

// @host      localhost:8080
// @BasePath  /api/v1

// @schemes   http https

func main() {
	rootCmd := &cobra.Command{
		Use:   constants.ServiceName,
		Short: "Payment webhook to CRM reconciliation service",
		Long:  "Payhook verifies payment provider webhooks and records donors, gifts and regular gifts in the CRM",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(requeueCmd())
	rootCmd.AddCommand(replayCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the config and logger shared by every command.
func setup() (*config.Config, logger.Logger, error) {
	earlyLog := logging.NewEarlyLog()

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
		if configFile == "" {
			earlyLog.Error("Config file is required. Use --config flag or CONFIG_FILE environment variable")
			return nil, nil, fmt.Errorf("config file is required")
		}
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		earlyLog.Error("Failed to load config: %v", err)
		return nil, nil, err
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		earlyLog.Error("Failed to init logger: %v", err)
		return nil, nil, err
	}
	if sugared, ok := log.(*logger.SugaredLogger); ok {
		sugared.SetServiceName(constants.ServiceName)
	}
	return cfg, log, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.InfowCtx(ctx, "Starting Payhook Service", "environment", cfg.App.Environment)

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.Fatalf("Failed to initialize application: %v", err)
			}

			if err := app.Run(ctx); err != nil {
				log.ErrorwCtx(ctx, "Application error", "error", err)
				return err
			}
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the ledger schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTool(cmd.Context(), func(ctx context.Context, t *Tool) error {
				return t.MigrateUp(ctx)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid steps %q: %w", args[0], err)
				}
				steps = n
			}
			return withTool(cmd.Context(), func(ctx context.Context, t *Tool) error {
				return t.MigrateDown(ctx, steps)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTool(cmd.Context(), func(ctx context.Context, t *Tool) error {
				version, dirty, err := t.MigrationVersion(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d dirty=%t\n", version, dirty)
				return nil
			})
		},
	})

	return cmd
}

func requeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <event_id>",
		Short: "Reset an event so its next delivery is processed again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTool(cmd.Context(), func(ctx context.Context, t *Tool) error {
				entry, err := t.Requeue(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", entry.EventID, entry.Status)
				return nil
			})
		},
	}
}

func replayCmd() *cobra.Command {
	var (
		provider string
		region   string
		file     string
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Publish a stored webhook body to the replay topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}
			return withTool(cmd.Context(), func(ctx context.Context, t *Tool) error {
				return t.Replay(ctx, provider, region, body)
			})
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "stripe or gocardless")
	cmd.Flags().StringVar(&region, "region", "", "Region the body was received on")
	cmd.Flags().StringVar(&file, "file", "", "Path to the raw webhook body")
	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func withTool(ctx context.Context, fn func(ctx context.Context, t *Tool) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	t := NewTool(cfg, log)
	defer t.Close()
	return fn(ctx, t)
}
