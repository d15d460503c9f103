package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"showroom_bot/internal/config"
	"showroom_bot/internal/infrastructure"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0"
var Version = "dev"

var patternsFile string

func main() {
	root := &cobra.Command{
		Use:   "showroom_bot",
		Short: "Multi-tenant WhatsApp assistant for used-car showrooms",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&patternsFile, "patterns", "", "intent pattern YAML (default: built-in patterns)")

	root.AddCommand(serveCmd(), migrateCmd(), versionCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server, gateways and scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			infrastructure.InitLogger(cfg.LogLevel, cfg.LogFormat)

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			pg, err := infrastructure.NewPostgresClient(ctx, cfg.DatabaseURL)
			if err != nil {
				log.Error().Err(err).Msg("Failed to connect to database")
				return err
			}
			defer pg.Close()
			return pg.Migrate(ctx)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("showroom_bot %s\n", Version)
		},
	}
}
