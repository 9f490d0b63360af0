package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aksel/sage/pkg/orchestrator"
)

var askSessionKey string

var askCmd = &cobra.Command{
	Use:   "ask [query]",
	Short: "Ask a single query and print the result",
	Long: `Ask routes one query through the agent graph, prints the routing
decision, the answer, and the tool steps taken, then exits. The session
named by --session accumulates history across invocations.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askSessionKey, "session", orchestrator.DefaultSessionKey, "session key for conversation history")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime(nil, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	query := strings.Join(args, " ")
	result, err := rt.service.RunQuery(cmd.Context(), askSessionKey, query)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	displayResult(cmd.OutOrStdout(), result)
	return nil
}
