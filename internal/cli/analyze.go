package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayounce80/sfmc-inv2/internal/deptree"
	"github.com/ayounce80/sfmc-inv2/internal/graph"
	"github.com/ayounce80/sfmc-inv2/internal/inventory"
	"github.com/ayounce80/sfmc-inv2/internal/pathexpr"
	"github.com/ayounce80/sfmc-inv2/internal/registry"
	"github.com/ayounce80/sfmc-inv2/internal/snapshot"
	"github.com/ayounce80/sfmc-inv2/internal/storage"
)

var analyzeFlags struct {
	snapshot   string
	depth      int
	dependents bool
	jsonOut    bool
	detect     bool
	sqlite     string
}

// analyzeCmd groups the offline analyses over a stored snapshot.
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a stored inventory snapshot",
	Long: `Analyze reads a snapshot directory written by 'run' and answers questions
about it without calling the API. --snapshot defaults to the newest snapshot
under the configured output directory.`,
}

var analyzeOrphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "List objects nothing references",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAnalysis()
		if err != nil {
			return err
		}
		orphans := a.builder.Graph().Orphans()
		if analyzeFlags.detect {
			orphans = a.builder.DetectAllOrphans()
		}
		return printOrphans(cmd.OutOrStdout(), orphans, analyzeFlags.jsonOut)
	},
}

var analyzeImpactCmd = &cobra.Command{
	Use:   "impact <type> <id>",
	Short: "Show what deleting an object would affect",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAnalysis()
		if err != nil {
			return err
		}
		report, err := a.builder.DeletionImpact(args[1], args[0], analyzeFlags.depth)
		if err != nil {
			return fmt.Errorf("failed to compute impact: %w", err)
		}
		out := cmd.OutOrStdout()
		if analyzeFlags.jsonOut {
			return writeJSON(out, report)
		}
		fmt.Fprint(out, graph.FormatImpact(report))
		return nil
	},
}

var analyzeTreeCmd = &cobra.Command{
	Use:   "tree <type> <id>",
	Short: "Print the dependency tree of an object",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAnalysis()
		if err != nil {
			return err
		}
		objectType, id := args[0], args[1]
		name := ""
		if obj, ok := a.builder.Object(id, objectType); ok {
			name = obj.Name
		}
		return printTree(cmd.OutOrStdout(), a.builder.Graph().Edges(), id, objectType, name,
			analyzeFlags.dependents, analyzeFlags.depth, analyzeFlags.jsonOut)
	},
}

var analyzeRefsCmd = &cobra.Command{
	Use:   "refs <extractor>",
	Short: "Show the references each stored object carries",
	Long: `Refs evaluates the registry's dependency paths against every stored object
of one extractor and prints the referenced values per dependency type.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAnalysis()
		if err != nil {
			return err
		}
		return printRefs(cmd.OutOrStdout(), a.reg, a.snap, args[0])
	},
}

var analyzeRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List runs stored in a SQLite database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := analyzeFlags.sqlite
		if path == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path = cfg.Output.SQLite
		}
		if path == "" {
			return fmt.Errorf("no database given: use --sqlite or output.sqlite")
		}

		store, err := storage.Open(path)
		if err != nil {
			return err
		}
		defer store.Close()
		return printRuns(cmd, store)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.PersistentFlags().StringVarP(&analyzeFlags.snapshot, "snapshot", "s", "", "snapshot directory (default: newest under output dir)")
	analyzeCmd.PersistentFlags().BoolVar(&analyzeFlags.jsonOut, "json", false, "print JSON")

	analyzeOrphansCmd.Flags().BoolVar(&analyzeFlags.detect, "detect", false, "re-run orphan detection over the stored objects")
	analyzeImpactCmd.Flags().IntVar(&analyzeFlags.depth, "depth", graph.DefaultImpactDepth, "maximum dependent depth")
	analyzeTreeCmd.Flags().IntVar(&analyzeFlags.depth, "depth", deptree.DefaultMaxDepth, "maximum tree depth")
	analyzeTreeCmd.Flags().BoolVar(&analyzeFlags.dependents, "dependents", false, "show what uses the object instead of what it uses")
	analyzeRunsCmd.Flags().StringVar(&analyzeFlags.sqlite, "sqlite", "", "SQLite database (default from config)")

	analyzeCmd.AddCommand(analyzeOrphansCmd, analyzeImpactCmd, analyzeTreeCmd, analyzeRefsCmd, analyzeRunsCmd)
}

// analysis is a snapshot loaded into a graph builder.
type analysis struct {
	reg     *registry.Registry
	snap    *snapshot.Snapshot
	builder *graph.Builder
}

func openAnalysis() (*analysis, error) {
	dir := analyzeFlags.snapshot
	if dir == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		if dir, err = snapshot.Latest(cfg.Output.Dir); err != nil {
			return nil, err
		}
	}
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	return loadAnalysis(dir, registry.Default(), logger)
}

// loadAnalysis indexes every stored object under its registry type and
// merges the stored relationship graph.
func loadAnalysis(dir string, reg *registry.Registry, logger *zap.Logger) (*analysis, error) {
	snap, err := snapshot.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	stored, err := snap.Graph()
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot graph: %w", err)
	}

	b := graph.NewBuilder(graph.WithLogger(logger))
	for _, name := range snap.Extractors() {
		objectType := reg.TypeForExtractor(name)
		if objectType == "" {
			logger.Warn("skipping objects of unknown extractor", zap.String("extractor", name))
			continue
		}
		items, err := snap.Objects(name)
		if err != nil {
			return nil, err
		}
		b.IndexObjects(items, objectType)
	}
	if err := b.MergeEdges(stored.Edges()); err != nil {
		return nil, fmt.Errorf("failed to merge relationships: %w", err)
	}
	for _, o := range stored.Orphans() {
		b.Graph().AddOrphan(o)
	}
	b.Graph().Finalize()

	return &analysis{reg: reg, snap: snap, builder: b}, nil
}

func printOrphans(out io.Writer, orphans []inventory.Orphan, asJSON bool) error {
	if asJSON {
		if orphans == nil {
			orphans = []inventory.Orphan{}
		}
		return writeJSON(out, orphans)
	}
	if len(orphans) == 0 {
		fmt.Fprintln(out, "✓ No orphans")
		return nil
	}

	byType := make(map[string][]inventory.Orphan)
	for _, o := range orphans {
		byType[o.ObjectType] = append(byType[o.ObjectType], o)
	}
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	fmt.Fprintf(out, "Orphans: %s\n", formatNumber(len(orphans)))
	for _, t := range types {
		fmt.Fprintf(out, "\n%s (%d)\n", t, len(byType[t]))
		for _, o := range byType[t] {
			line := fmt.Sprintf("  %s  %s", o.ID, o.Name)
			if o.FolderPath != "" {
				line += "  [" + o.FolderPath + "]"
			}
			fmt.Fprintln(out, line)
		}
	}
	return nil
}

func printTree(out io.Writer, edges []inventory.Edge, id, objectType, name string, dependents bool, depth int, asJSON bool) error {
	b := deptree.NewBuilder(edges)
	dir := deptree.Dependencies
	if dependents {
		dir = deptree.Dependents
	}
	if asJSON {
		return writeJSON(out, b.Export(id, objectType, name, dir, depth))
	}

	var root *deptree.Node
	if dependents {
		root = b.DependentTree(id, objectType, name, depth)
	} else {
		root = b.DependencyTree(id, objectType, name, depth)
	}
	fmt.Fprintln(out, deptree.Text(root))
	return nil
}

func printRefs(out io.Writer, reg *registry.Registry, snap *snapshot.Snapshot, extractor string) error {
	def, ok := reg.ByExtractor(extractor)
	if !ok {
		return fmt.Errorf("%w: %s", inventory.ErrUnknownExtractor, extractor)
	}
	if len(def.DependencyPaths) == 0 {
		fmt.Fprintf(out, "%s declares no dependency paths\n", extractor)
		return nil
	}
	items, err := snap.Objects(extractor)
	if err != nil {
		return err
	}

	depTypes := make([]string, 0, len(def.DependencyPaths))
	for t := range def.DependencyPaths {
		depTypes = append(depTypes, t)
	}
	sort.Strings(depTypes)

	for _, it := range items {
		refs := pathexpr.ExtractDependencyRefs(it.Map(), def.DependencyPaths)
		if len(refs) == 0 {
			continue
		}
		fmt.Fprintf(out, "%s  %s\n", it.ID, it.Name)
		for _, t := range depTypes {
			values := refs[t]
			if len(values) == 0 {
				continue
			}
			parts := make([]string, len(values))
			for i, v := range values {
				parts[i] = inventory.Stringify(v)
			}
			fmt.Fprintf(out, "  %-20s %s\n", t, strings.Join(parts, ", "))
		}
	}
	return nil
}

func printRuns(cmd *cobra.Command, store *storage.Store) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	runs, err := store.Runs(ctx)
	if err != nil {
		return err
	}
	if analyzeFlags.jsonOut {
		return writeJSON(out, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs stored")
		return nil
	}

	for _, run := range runs {
		fmt.Fprintf(out, "%s  %s  account=%s  objects=%s  relationships=%s\n",
			run.RunID, run.StartedAt.Format("2006-01-02 15:04:05"), orDash(run.AccountID),
			formatNumber(run.TotalObjects), formatNumber(run.TotalRelationships))

		counts, err := store.RelationshipCounts(ctx, run.RunID)
		if err != nil {
			return err
		}
		types := make([]string, 0, len(counts))
		for t := range counts {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(out, "    %-36s %s\n", t, formatNumber(counts[t]))
		}
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
