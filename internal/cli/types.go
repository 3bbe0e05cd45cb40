package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ayounce80/sfmc-inv2/internal/registry"
	"github.com/ayounce80/sfmc-inv2/internal/runner"
)

var typesJSON bool

// typesCmd lists the registered object types.
var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the object types that can be inventoried",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := registry.Default()
		out := cmd.OutOrStdout()
		if typesJSON {
			defs := make([]registry.TypeDefinition, 0, len(reg.TypeNames()))
			for _, name := range reg.TypeNames() {
				def, _ := reg.Definition(name)
				defs = append(defs, def)
			}
			return writeJSON(out, defs)
		}
		printTypes(out, reg)
		return nil
	},
}

// presetsCmd lists the extractor presets.
var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the extractor presets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		presets, err := loadPresets(cfg)
		if err != nil {
			return err
		}
		printPresets(cmd.OutOrStdout(), presets.All())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(typesCmd, presetsCmd)
	typesCmd.Flags().BoolVar(&typesJSON, "json", false, "print the type definitions as JSON")
}

func printTypes(out io.Writer, reg *registry.Registry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tEXTRACTOR\tAPI\tMULTI-BU\tSHARED\tDEPENDS ON")
	for _, name := range reg.TypeNames() {
		def, _ := reg.Definition(name)
		deps := strings.Join(def.Dependencies, ", ")
		if deps == "" {
			deps = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			def.Name, def.ExtractorName, def.APIType,
			yesNo(def.SupportsMultiAccount), yesNo(def.SharedFromParent), deps)
	}
	w.Flush()
}

func printPresets(out io.Writer, presets []runner.Preset) {
	for _, p := range presets {
		fmt.Fprintf(out, "%s\n", p.Name)
		if p.Description != "" {
			fmt.Fprintf(out, "  %s\n", p.Description)
		}
		fmt.Fprintf(out, "  %s\n\n", strings.Join(p.Extractors, ", "))
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
