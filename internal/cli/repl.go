package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aksel/sage/pkg/orchestrator"
)

var replSessionKey string

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive query session",
	Long: `Repl starts an interactive session where each line is routed through
the agent graph. Inline commands: 'history' shows the conversation so
far, 'clear' resets it, 'tools' lists the available tools, 'exit' ends
the session.`,
	RunE: runRepl,
}

func init() {
	replCmd.Flags().StringVar(&replSessionKey, "session", orchestrator.DefaultSessionKey, "session key for conversation history")
	rootCmd.AddCommand(replCmd)
}

func runRepl(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime(nil, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	orch, err := rt.service.ForSession(replSessionKey)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Interactive mode. Type 'exit' or 'quit' to end.")
	fmt.Fprintln(out, "Commands: 'history' shows past interactions, 'clear' resets them, 'tools' lists tools.")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch strings.ToLower(line) {
		case "exit", "quit", "q":
			fmt.Fprintf(out, "\nSession ended. %d interactions recorded.\n", len(orch.History()))
			return nil

		case "history":
			fmt.Fprintln(out)
			fmt.Fprintln(out, orch.HistorySummary())
			continue

		case "clear":
			if err := orch.ClearHistory(cmd.Context()); err != nil {
				fmt.Fprintf(out, "Failed to clear history: %v\n", err)
				continue
			}
			fmt.Fprintln(out, "Conversation history cleared.")
			continue

		case "tools":
			fmt.Fprintln(out)
			fmt.Fprintln(out, rt.registry.Describe())
			continue
		}

		result, err := orch.RunQuery(cmd.Context(), line)
		if err != nil {
			fmt.Fprintf(out, "Error processing query: %v\n", err)
			continue
		}
		displayResult(out, result)
	}

	return scanner.Err()
}
