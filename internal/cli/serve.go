package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/aksel/sage/pkg/gateway"
	"github.com/aksel/sage/pkg/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway server",
	Long: `Serve runs the HTTP and websocket gateway over the agent graph and
prunes old session files in the background. It stops gracefully on
SIGINT and SIGTERM, waiting for in-flight queries to complete.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, lg, err := initBase(true)
	if err != nil {
		return err
	}

	// One broadcaster serves both sides: the orchestrator emits progress
	// events into it, the gateway streams them to websocket clients.
	broadcaster := gateway.NewBroadcaster(log.Logger)

	rt, err := assemble(cfg, lg, broadcaster)
	if err != nil {
		_ = lg.Close()
		return err
	}
	defer rt.Close()

	retention := time.Duration(cfg.Session.RetentionDays) * 24 * time.Hour
	cleanup, err := session.NewCleanup(rt.store, retention, cfg.Session.CleanupSchedule)
	if err != nil {
		return fmt.Errorf("failed to create session cleanup: %w", err)
	}
	if err := cleanup.Start(); err != nil {
		return fmt.Errorf("failed to start session cleanup: %w", err)
	}
	defer func() { _ = cleanup.Stop() }()

	server, err := gateway.NewServer(gateway.Config{
		Host:         cfg.Gateway.Host,
		Port:         cfg.Gateway.Port,
		SharedSecret: cfg.Gateway.SharedSecret,
		Service:      rt.service,
		Broadcaster:  broadcaster,
		Logger:       log.Logger,
	})
	if err != nil {
		return err
	}

	if err := server.Start(); err != nil {
		return err
	}
	log.Info().Str("addr", server.Addr()).Msg("Gateway listening")
	fmt.Fprintf(cmd.OutOrStdout(), "Sage gateway listening on %s\n", server.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	if err := server.Stop(); err != nil {
		return fmt.Errorf("failed to stop gateway: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Sage gateway stopped.")
	return nil
}
