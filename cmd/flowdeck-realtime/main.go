package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowdeck/realtime/pkg/api"
	"github.com/flowdeck/realtime/pkg/auth"
	"github.com/flowdeck/realtime/pkg/config"
	"github.com/flowdeck/realtime/pkg/log"
	"github.com/flowdeck/realtime/pkg/session"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "flowdeck-realtime",
	Short: "Flowdeck realtime - collaborative session daemon",
	Long: `Flowdeck realtime is the session layer behind Flowdeck's live
collaboration features: shared project rooms, presence, and low-latency
event relay between everyone working on the same board.

It delivers events fire-and-forget; documents of record live in the
Flowdeck API, not here.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Flowdeck realtime version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the realtime daemon",
	Long: `Run the realtime daemon: a single process holding every live
connection, with rooms and presence kept in memory. Restarting drops all
sessions; clients reconnect and rejoin on their own.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		listen, _ := cmd.Flags().GetString("listen")
		tokenSecret, _ := cmd.Flags().GetString("token-secret")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if listen != "" {
			cfg.Listen = listen
		}
		if tokenSecret != "" {
			cfg.TokenSecret = tokenSecret
		}
		if secret := os.Getenv("FLOWDECK_TOKEN_SECRET"); secret != "" && cfg.TokenSecret == "" {
			cfg.TokenSecret = secret
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		log.Init(log.Config{
			Level:      log.Level(cfg.Log.Level),
			JSONOutput: cfg.Log.JSON,
		})
		logger := log.WithComponent("main")
		logger.Info().
			Str("version", Version).
			Str("listen", cfg.Listen).
			Msg("starting flowdeck-realtime")

		verifier, err := auth.NewVerifier(cfg.TokenSecret)
		if err != nil {
			return fmt.Errorf("failed to create verifier: %w", err)
		}

		hub := session.NewHub()
		hub.Run()

		wsHandler := session.NewHandler(hub, verifier, session.Timings{
			PingInterval: cfg.PingInterval,
			PongTimeout:  cfg.PongTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}, cfg.SendBuffer, cfg.AllowedOrigins)

		server := api.NewServer(cfg.Listen, hub, wsHandler)
		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("shutting down")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("shutdown did not complete cleanly")
		}
		hub.Stop()
		logger.Info().Msg("stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("config", "", "Path to config file")
	serveCmd.Flags().String("listen", "", "Listen address (overrides config)")
	serveCmd.Flags().String("token-secret", "", "Credential signing secret (overrides config)")
}
