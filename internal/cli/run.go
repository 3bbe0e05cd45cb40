package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayounce80/sfmc-inv2/internal/cache"
	"github.com/ayounce80/sfmc-inv2/internal/config"
	"github.com/ayounce80/sfmc-inv2/internal/inventory"
	"github.com/ayounce80/sfmc-inv2/internal/registry"
	"github.com/ayounce80/sfmc-inv2/internal/replay"
	"github.com/ayounce80/sfmc-inv2/internal/runner"
	"github.com/ayounce80/sfmc-inv2/internal/snapshot"
	"github.com/ayounce80/sfmc-inv2/internal/storage"
)

// latestSnapshot selects the newest snapshot under the output directory.
const latestSnapshot = "latest"

// runOptions carries the run command's flags.
type runOptions struct {
	Extract      []string
	Preset       string
	AccountID    string
	OutputDir    string
	Format       string
	Details      *bool // nil keeps the configured value
	Content      *bool
	NoPlanner    bool
	FromSnapshot string
	SQLite       string
	Archive      bool
	Quiet        bool
}

// runOutcome is what a run produced.
type runOutcome struct {
	Result      *runner.Result
	SnapshotDir string
	Archived    []string
}

var runFlags struct {
	extract      []string
	preset       string
	accountID    string
	outputDir    string
	format       string
	details      bool
	content      bool
	noPlanner    bool
	fromSnapshot string
	sqlite       string
	archive      bool
	quiet        bool
}

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract an inventory and write a snapshot",
	Long: `Run extracts the selected object types in dependency order, builds the
relationship graph, detects orphans and writes a snapshot directory.

Examples:
  # Automation Studio activities
  sfmc-inventory run --preset automation

  # Everything starting with "auto" plus data extensions, as YAML
  sfmc-inventory run -e 'auto*' -e data_extensions -f yaml

  # Replay the newest snapshot offline and store it in SQLite
  sfmc-inventory run -p full --from-snapshot latest --sqlite inventory.db
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		opts := runOptions{
			Extract:      runFlags.extract,
			Preset:       runFlags.preset,
			AccountID:    runFlags.accountID,
			OutputDir:    runFlags.outputDir,
			Format:       runFlags.format,
			NoPlanner:    runFlags.noPlanner,
			FromSnapshot: runFlags.fromSnapshot,
			SQLite:       runFlags.sqlite,
			Archive:      runFlags.archive,
			Quiet:        runFlags.quiet,
		}
		if cmd.Flags().Changed("details") {
			opts.Details = &runFlags.details
		}
		if cmd.Flags().Changed("content") {
			opts.Content = &runFlags.content
		}

		outcome, err := runInventory(ctx, cfg, opts, logger, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if !outcome.Result.PartialSuccess() {
			return fmt.Errorf("no extractor succeeded")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	f := runCmd.Flags()
	f.StringSliceVarP(&runFlags.extract, "extract", "e", nil, "extractors to run (comma list, glob pattern, or 'all')")
	f.StringVarP(&runFlags.preset, "preset", "p", "", "named extractor preset")
	f.StringVarP(&runFlags.accountID, "account-id", "a", "", "business unit MID to extract")
	f.StringVarP(&runFlags.outputDir, "output-dir", "o", "", "snapshot base directory (default from config)")
	f.StringVarP(&runFlags.format, "format", "f", "", "manifest format: json or yaml (default from config)")
	f.BoolVar(&runFlags.details, "details", true, "fetch per-object details")
	f.BoolVar(&runFlags.content, "content", false, "fetch object content (SQL text, scripts)")
	f.BoolVar(&runFlags.noPlanner, "no-planner", false, "start every extractor at once without dependency layers")
	f.StringVar(&runFlags.fromSnapshot, "from-snapshot", "", "replay a snapshot directory ('latest' for the newest) instead of calling the API")
	f.StringVar(&runFlags.sqlite, "sqlite", "", "also store the run in this SQLite database (default from config)")
	f.BoolVar(&runFlags.archive, "archive", false, "upload the snapshot to the configured bucket")
	f.BoolVarP(&runFlags.quiet, "quiet", "q", false, "disable progress output")
}

// runInventory performs one run and writes its outputs. A cancelled run
// still writes what it collected and then reports the cancellation.
func runInventory(ctx context.Context, cfg *config.Config, opts runOptions, logger *zap.Logger, out io.Writer) (*runOutcome, error) {
	if opts.AccountID != "" {
		cfg = cfg.WithAccount(opts.AccountID)
	}
	outputDir := firstNonEmpty(opts.OutputDir, cfg.Output.Dir)
	format := firstNonEmpty(opts.Format, cfg.Output.Format)
	sqlitePath := firstNonEmpty(opts.SQLite, cfg.Output.SQLite)

	if opts.Archive && !cfg.Output.Archive.Enabled() {
		return nil, fmt.Errorf("--archive needs output.archive.endpoint in the configuration")
	}

	presets, err := loadPresets(cfg)
	if err != nil {
		return nil, err
	}
	reg := registry.Default()
	names, err := resolveExtractors(reg, opts.Extract, opts.Preset, presets)
	if err != nil {
		return nil, err
	}

	catalog, loader, err := openCatalog(cfg, opts.FromSnapshot, outputDir, reg, logger)
	if err != nil {
		return nil, err
	}

	caches, err := cache.NewManager(loader,
		cache.WithLogger(logger),
		cache.WithAccounts(cfg.SFMC.AccountID, cfg.SFMC.ParentAccountID))
	if err != nil {
		return nil, err
	}
	defer caches.Close()

	rc := cfg.RunnerConfig()
	if opts.Details != nil {
		rc.IncludeDetails = *opts.Details
	}
	if opts.Content != nil {
		rc.IncludeContent = *opts.Content
	}
	if opts.NoPlanner {
		rc.UsePlanner = false
	}

	r := runner.New(reg, catalog,
		runner.WithConfig(rc),
		runner.WithLogger(logger),
		runner.WithObserver(NewCLIProgressObserver(out, opts.Quiet)),
		runner.WithCacheWarmer(caches))

	logger.Info("starting run",
		zap.Strings("extractors", names),
		zap.String("account_id", cfg.SFMC.AccountID),
		zap.Bool("planner", rc.UsePlanner))

	result, runErr := r.Run(ctx, names)
	if result == nil {
		return nil, fmt.Errorf("run failed: %w", runErr)
	}
	outcome := &runOutcome{Result: result}

	// Outputs are written even after an interrupt.
	writeCtx := context.WithoutCancel(ctx)

	writer := snapshot.NewWriter(outputDir,
		snapshot.WithSubdomain(cfg.SFMC.Subdomain),
		snapshot.WithAccountID(cfg.SFMC.AccountID),
		snapshot.WithPreset(opts.Preset),
		snapshot.WithFormat(format),
		snapshot.WithToolVersion(Version),
		snapshot.WithLogger(logger))
	dir, err := writer.Write(result)
	if err != nil {
		return outcome, fmt.Errorf("failed to write snapshot: %w", err)
	}
	outcome.SnapshotDir = dir
	if !opts.Quiet {
		fmt.Fprintf(out, "✓ Snapshot written to %s\n", dir)
	}

	if sqlitePath != "" {
		if err := storeRun(writeCtx, sqlitePath, reg, result, cfg.SFMC.AccountID, logger); err != nil {
			return outcome, err
		}
		if !opts.Quiet {
			fmt.Fprintf(out, "✓ Run %s stored in %s\n", result.RunID, sqlitePath)
		}
	}

	if opts.Archive {
		archiver, err := snapshot.NewArchiver(cfg.ArchiveConfig(), logger)
		if err != nil {
			return outcome, err
		}
		keys, err := archiver.Upload(writeCtx, dir)
		if err != nil {
			return outcome, err
		}
		outcome.Archived = keys
		if !opts.Quiet {
			fmt.Fprintf(out, "✓ Uploaded %d files to %s\n", len(keys), cfg.Output.Archive.Bucket)
		}
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return outcome, fmt.Errorf("run cancelled; partial snapshot written to %s", dir)
		}
		return outcome, runErr
	}
	return outcome, nil
}

// openCatalog returns the extractor source: a replayed snapshot when
// fromSnapshot is set, otherwise the registered live catalog.
func openCatalog(cfg *config.Config, fromSnapshot, outputDir string, reg *registry.Registry, logger *zap.Logger) (inventory.Catalog, cache.Loader, error) {
	if fromSnapshot != "" {
		dir := fromSnapshot
		if dir == latestSnapshot {
			latest, err := snapshot.Latest(outputDir)
			if err != nil {
				return nil, nil, err
			}
			dir = latest
		}
		c, err := replay.New(dir, reg, replay.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		logger.Info("replaying snapshot", zap.String("dir", dir))
		return c, c.CacheLoader(), nil
	}

	factory := registeredCatalog()
	if factory == nil {
		return nil, nil, ErrNoCatalog
	}
	if err := config.ValidateCredentials(&cfg.SFMC); err != nil {
		return nil, nil, fmt.Errorf("invalid credentials: %w", err)
	}
	catalog, loader, err := factory(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create extractor catalog: %w", err)
	}
	return catalog, loader, nil
}

func storeRun(ctx context.Context, path string, reg *registry.Registry, result *runner.Result, accountID string, logger *zap.Logger) error {
	store, err := storage.Open(path, storage.WithRegistry(reg), storage.WithLogger(logger))
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.WriteRun(ctx, result, accountID); err != nil {
		return fmt.Errorf("failed to store run: %w", err)
	}
	return nil
}

func loadPresets(cfg *config.Config) (*runner.PresetCatalog, error) {
	if cfg.Runner.PresetsFile == "" {
		return runner.DefaultPresets(), nil
	}
	return runner.LoadPresets(cfg.Runner.PresetsFile)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
