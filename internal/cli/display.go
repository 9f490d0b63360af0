package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/aksel/sage/pkg/orchestrator"
)

const (
	inputColumnLimit  = 50
	outputColumnLimit = 100
)

// displayResult prints one query result: the routing header, the answer,
// the tool steps behind it, and the error when the strategy degraded.
func displayResult(w io.Writer, result *orchestrator.Result) {
	divider := strings.Repeat("=", 80)

	fmt.Fprintln(w)
	fmt.Fprintln(w, divider)
	fmt.Fprintf(w, "Query:     %s\n", result.Query)
	fmt.Fprintf(w, "Routed to: %s agent\n", result.Route)
	fmt.Fprintf(w, "Reasoning: %s\n", result.Reasoning)
	fmt.Fprintln(w, divider)
	fmt.Fprintln(w)
	fmt.Fprintln(w, result.Answer)

	if len(result.Steps) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Steps taken:")
		for i, step := range result.Steps {
			fmt.Fprintf(w, "  %d. %s\n", i+1, step.Tool)
			fmt.Fprintf(w, "     input:  %s\n", truncate(oneLine(step.Input), inputColumnLimit))
			fmt.Fprintf(w, "     output: %s\n", truncate(oneLine(step.Output), outputColumnLimit))
		}
	}

	if result.Error != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Error: %s\n", result.Error)
	}
}

// truncate shortens s to limit characters, ellipsis included.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	if limit <= 3 {
		return s[:limit]
	}
	return s[:limit-3] + "..."
}

// oneLine collapses whitespace runs so multi-line tool output fits a row.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
