package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ayounce80/sfmc-inv2/internal/planner"
	"github.com/ayounce80/sfmc-inv2/internal/registry"
	"github.com/ayounce80/sfmc-inv2/internal/runner"
)

var planFlags struct {
	extract []string
	preset  string
	jsonOut bool
}

// planCmd shows what a run would execute without running it.
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the extraction plan for a selection",
	Long: `Plan resolves the selection like 'run' does and prints the ordered steps,
marking dependencies that are extracted only to resolve references, and the
layers that would run concurrently.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		presets, err := loadPresets(cfg)
		if err != nil {
			return err
		}
		reg := registry.Default()
		names, err := resolveExtractors(reg, planFlags.extract, planFlags.preset, presets)
		if err != nil {
			return err
		}

		r := runner.New(reg, nil, runner.WithConfig(cfg.RunnerConfig()))
		plan := r.Plan(names)
		out := cmd.OutOrStdout()
		if planFlags.jsonOut {
			return writeJSON(out, plan)
		}
		printPlan(out, reg, plan)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().StringSliceVarP(&planFlags.extract, "extract", "e", nil, "extractors to plan (comma list, glob pattern, or 'all')")
	planCmd.Flags().StringVarP(&planFlags.preset, "preset", "p", "", "named extractor preset")
	planCmd.Flags().BoolVar(&planFlags.jsonOut, "json", false, "print the plan as JSON")
}

func printPlan(out io.Writer, reg *registry.Registry, plan *planner.Plan) {
	fmt.Fprintf(out, "Plan: %d steps (%d requested, %d cache-only)\n\n",
		len(plan.Steps), len(plan.OutputExtractorNames()), len(plan.CacheOnlyExtractorNames()))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tEXTRACTOR\tTYPE\tMODE\tREASON")
	for i, s := range plan.Steps {
		mode := "output"
		if s.CacheOnly {
			mode = "cache-only"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i+1, s.ExtractorName, s.TypeName, mode, s.Reason)
	}
	w.Flush()

	p := planner.New(reg)
	fmt.Fprintln(out, "\nLayers:")
	for i, layer := range p.Layers(plan.TypeNames()) {
		fmt.Fprintf(out, "  %d: %s\n", i+1, strings.Join(layer, ", "))
	}

	gaps := p.ValidateDependencies(plan.OutputExtractorNames())
	if len(gaps) == 0 {
		return
	}
	names := make([]string, 0, len(gaps))
	for name := range gaps {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(out, "\nDependencies resolved from cache-only steps:")
	for _, name := range names {
		fmt.Fprintf(out, "  %s needs %s\n", name, strings.Join(gaps[name], ", "))
	}
}
