package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/ayounce80/sfmc-inv2/internal/inventory"
	"github.com/ayounce80/sfmc-inv2/internal/runner"
)

// CLIProgressObserver renders run progress as a progress bar plus one line
// per finished extractor.
type CLIProgressObserver struct {
	out   io.Writer
	quiet bool

	mu        sync.Mutex
	bar       *progressbar.ProgressBar
	startTime time.Time
	total     int
	finished  map[string]bool
}

// NewCLIProgressObserver creates an observer writing to out.
func NewCLIProgressObserver(out io.Writer, quiet bool) *CLIProgressObserver {
	return &CLIProgressObserver{
		out:       out,
		quiet:     quiet,
		startTime: time.Now(),
		finished:  make(map[string]bool),
	}
}

func (c *CLIProgressObserver) OnRunStart(layers [][]string) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total = 0
	for _, layer := range layers {
		c.total += len(layer)
	}
	fmt.Fprintf(c.out, "Extracting %d object types in %d layers\n", c.total, len(layers))

	c.bar = progressbar.NewOptions(c.total,
		progressbar.OptionSetWriter(c.out),
		progressbar.OptionSetDescription("Extracting"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(c.out)
		}),
	)
}

func (c *CLIProgressObserver) OnLayerStart(index int, names []string) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bar != nil {
		c.bar.Describe(fmt.Sprintf("Layer %d: %s", index+1, strings.Join(names, ", ")))
	}
}

func (c *CLIProgressObserver) OnExtractorState(name string, state runner.State, current, total int) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	switch state {
	case runner.StateRunning:
		if c.bar != nil && total > 0 {
			c.bar.Describe(fmt.Sprintf("%s %d/%d", name, current, total))
		}
	case runner.StateCompleted, runner.StateFailed, runner.StateError:
		if c.finished[name] {
			return
		}
		c.finished[name] = true
		if c.bar != nil {
			c.bar.Add(1)
		}
	}
}

func (c *CLIProgressObserver) OnRunComplete(result *runner.Result) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bar != nil {
		c.bar.Finish()
		c.bar = nil
	}

	stats := result.Statistics()
	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "✓ Extraction complete: %s objects, %s relationships in %.1fs\n",
		formatNumber(stats.TotalObjects),
		formatNumber(stats.TotalRelationships),
		time.Since(c.startTime).Seconds())

	for _, name := range result.Names() {
		st := stats.ByExtractor[name]
		mark := "✓"
		if st.Status != inventory.StatusCompleted {
			mark = "✗"
		}
		fmt.Fprintf(c.out, "  %s %-22s %8s items  %.1fs\n", mark, name, formatNumber(st.ItemsExtracted), st.DurationSeconds)
	}

	if orphans := len(result.Graph.Orphans()); orphans > 0 {
		fmt.Fprintf(c.out, "  Orphans: %s\n", formatNumber(orphans))
	}
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	str := fmt.Sprintf("%d", n)
	var result string
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(c)
	}
	return result
}
