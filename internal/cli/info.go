package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aksel/sage/internal/config"
	"github.com/aksel/sage/pkg/router"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show configured provider, strategies, and tools",
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "sage version %s\n\n", version)
	fmt.Fprintf(out, "Provider: %s (model %s)\n", cfg.Provider.Name, cfg.Provider.Model)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Strategies:")
	fmt.Fprintf(out, "  %-10s direct answering with tool access, up to %d reasoning steps\n",
		router.RouteGeneral, cfg.Agent.MaxIterations)
	fmt.Fprintf(out, "  %-10s plan, execute, and synthesize multi-source research, up to %d passes\n",
		router.RouteResearch, cfg.Agent.ResearchMaxIterations)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Tools:")
	for _, name := range registry.SortedNames() {
		tool, ok := registry.Resolve(name)
		if !ok {
			continue
		}
		fmt.Fprintf(out, "  %-12s %s\n", name, truncate(oneLine(tool.Description()), 80))
	}

	return nil
}
