package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aksel/sage/internal/config"
	"github.com/aksel/sage/pkg/orchestrator"
	"github.com/aksel/sage/pkg/session"
)

var (
	historySessionKey string
	historyClear      bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show or clear persisted conversation history",
	Long: `History prints the persisted conversation for a session key, or
clears it with --clear. It reads the session files directly, so no
provider credentials are needed.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historySessionKey, "session", orchestrator.DefaultSessionKey, "session key")
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "clear the session instead of showing it")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := session.NewStore(cfg.Session.Dir)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}

	sess, err := session.New(historySessionKey, store)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if historyClear {
		if err := sess.Clear(cmd.Context()); err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		fmt.Fprintf(out, "Cleared conversation history for session %q.\n", historySessionKey)
		return nil
	}

	fmt.Fprintln(out, sess.Summary())
	return nil
}
