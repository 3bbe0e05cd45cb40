package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayounce80/sfmc-inv2/internal/registry"
	"github.com/ayounce80/sfmc-inv2/internal/snapshot"
	"github.com/ayounce80/sfmc-inv2/internal/storage"
	"github.com/ayounce80/sfmc-inv2/internal/watcher"
)

var storeFlags struct {
	sqlite string
	watch  bool
}

// storeCmd loads snapshot directories into the SQLite database.
var storeCmd = &cobra.Command{
	Use:   "store [snapshot-dir...]",
	Short: "Load snapshots into the SQLite database",
	Long: `Store imports snapshot directories into the SQLite database. Without
arguments the newest snapshot under the output directory is imported.

With --watch, store keeps running and imports every snapshot that finishes
writing under the output directory until interrupted.`,
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

		path := firstNonEmpty(storeFlags.sqlite, cfg.Output.SQLite)
		if path == "" {
			return fmt.Errorf("no database given: use --sqlite or output.sqlite")
		}
		store, err := storage.Open(path, storage.WithRegistry(registry.Default()), storage.WithLogger(logger))
		if err != nil {
			return err
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		dirs := args
		if len(dirs) == 0 && !storeFlags.watch {
			latest, err := snapshot.Latest(cfg.Output.Dir)
			if err != nil {
				return err
			}
			dirs = []string{latest}
		}
		if err := importSnapshots(ctx, store, dirs, out); err != nil {
			return err
		}
		if !storeFlags.watch {
			return nil
		}
		return watchSnapshots(ctx, store, cfg.Output.Dir, out, logger)
	},
}

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.Flags().StringVar(&storeFlags.sqlite, "sqlite", "", "SQLite database (default from config)")
	storeCmd.Flags().BoolVarP(&storeFlags.watch, "watch", "w", false, "keep importing new snapshots from the output directory")
}

// importSnapshots stores each snapshot as a run. Re-importing a snapshot
// replaces the run it produced earlier.
func importSnapshots(ctx context.Context, store *storage.Store, dirs []string, out io.Writer) error {
	for _, dir := range dirs {
		snap, err := snapshot.Open(dir)
		if err != nil {
			return fmt.Errorf("%s: %w", dir, err)
		}
		result, err := snap.Result()
		if err != nil {
			return fmt.Errorf("%s: %w", dir, err)
		}
		if err := store.WriteRun(ctx, result, snap.Manifest.Metadata.AccountID); err != nil {
			return fmt.Errorf("%s: failed to store run: %w", dir, err)
		}
		fmt.Fprintf(out, "✓ Stored run %s from %s\n", result.RunID, dir)
	}
	return nil
}

// watchSnapshots imports snapshots completed under baseDir until ctx ends.
// Import failures are logged and do not stop the watch.
func watchSnapshots(ctx context.Context, store *storage.Store, baseDir string, out io.Writer, logger *zap.Logger) error {
	w, err := watcher.NewSnapshotWatcher(baseDir, watcher.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", baseDir, err)
	}
	defer w.Stop()

	err = w.Start(ctx, func(dirs []string) {
		if err := importSnapshots(context.WithoutCancel(ctx), store, dirs, out); err != nil {
			logger.Warn("failed to import snapshot", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	logger.Info("watching for snapshots", zap.String("dir", baseDir))
	<-ctx.Done()
	return nil
}
