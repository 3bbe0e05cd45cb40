package watcher

import "context"

// SnapshotWatcher reports snapshot directories that finish writing under a
// base directory, with debouncing and pause/resume support.
type SnapshotWatcher interface {
	// Start begins watching, calling callback with the debounced list of
	// completed snapshot directories.
	Start(ctx context.Context, callback func(dirs []string)) error

	// Stop stops the watcher and cleans up resources.
	Stop() error

	// Pause stops firing callbacks but keeps accumulating completed snapshots.
	Pause()

	// Resume resumes firing callbacks. Snapshots accumulated during pause are reported immediately.
	Resume()
}
