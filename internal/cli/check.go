package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ayounce80/sfmc-inv2/internal/config"
	"github.com/ayounce80/sfmc-inv2/internal/planner"
	"github.com/ayounce80/sfmc-inv2/internal/registry"
)

var checkFlags struct {
	extract []string
	preset  string
}

// checkCmd validates configuration, credentials and the type registry.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration, credentials and extractor dependencies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		problems := runChecks(cmd.OutOrStdout(), cfg, registry.Default(), checkFlags.extract, checkFlags.preset)
		if problems > 0 {
			return fmt.Errorf("%d check(s) failed", problems)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringSliceVarP(&checkFlags.extract, "extract", "e", nil, "also check that this selection has its dependencies")
	checkCmd.Flags().StringVarP(&checkFlags.preset, "preset", "p", "", "also check this preset's dependencies")
}

// runChecks prints one line per check and returns how many failed. A
// missing dependency in the selection is reported but not counted, since the
// planner extracts it as a cache-only step.
func runChecks(out io.Writer, cfg *config.Config, reg *registry.Registry, extract []string, preset string) int {
	failed := 0
	report := func(name string, err error) {
		if err != nil {
			failed++
			fmt.Fprintf(out, "✗ %s\n", name)
			for _, line := range strings.Split(err.Error(), "\n") {
				fmt.Fprintf(out, "    %s\n", line)
			}
			return
		}
		fmt.Fprintf(out, "✓ %s\n", name)
	}

	report("Configuration", config.Validate(cfg))
	report("Credentials", config.ValidateCredentials(&cfg.SFMC))
	report("Type registry", reg.Validate())

	presets, err := loadPresets(cfg)
	report("Presets", err)
	if err != nil || (len(extract) == 0 && preset == "") {
		return failed
	}

	names, err := resolveExtractors(reg, extract, preset, presets)
	report("Selection", err)
	if err != nil {
		return failed
	}

	gaps := planner.New(reg).ValidateDependencies(names)
	keys := make([]string, 0, len(gaps))
	for name := range gaps {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	for _, name := range keys {
		fmt.Fprintf(out, "  ! %s depends on %s (extracted as cache-only)\n", name, strings.Join(gaps[name], ", "))
	}
	return failed
}
