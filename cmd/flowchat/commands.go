package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/flowchat-server/internal/app"
	"github.com/vovakirdan/flowchat-server/internal/auth"
	"github.com/vovakirdan/flowchat-server/internal/config"
	"github.com/vovakirdan/flowchat-server/internal/log"
)

// buildServeCmd creates the "serve" command that runs the chat server until
// SIGINT/SIGTERM.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat server",
		Example: `  # Start with ./config.yaml (written with defaults if missing)
  flowchat serve

  # Start with a custom config and listen address
  flowchat serve --config /etc/flowchat/config.yaml --addr :9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if debug {
				cfg.LogLevel = "debug"
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func runServe(ctx context.Context, cfg config.Config) error {
	logger := log.New(cfg.LogLevel, cfg.LogFormat)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Str("version", app.Version).Msg("starting flowchat server")
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// buildTokenCmd creates the "token" command that signs a session token with
// the configured secret. Handy for smoke tests against a running server.
func buildTokenCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		username   string
		email      string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed session token",
		Example: `  flowchat token --username alice
  flowchat token --user-id 7d3c... --username alice --email alice@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("jwt_secret is not configured")
			}
			if userID == "" {
				userID = uuid.NewString()
			}

			token, err := auth.GenerateToken(auth.JWTConfigFrom(cfg), userID, username, email)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&userID, "user-id", "", "Subject user id (random when empty)")
	cmd.Flags().StringVar(&username, "username", "", "Username claim")
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

func loadConfig(path string) (config.Config, error) {
	cfg, _, err := config.Load(log.New("info", "console"), path)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
