package runner

// State is the lifecycle stage of one extractor within a run.
type State string

const (
	StatePending   State = "Pending"
	StateRunning   State = "Running"
	StateCompleted State = "Completed"
	StateFailed    State = "Failed"
	StateError     State = "Error"
)

// ProgressObserver receives run progress. Extractors in one layer report
// concurrently, so implementations must be safe for concurrent use.
type ProgressObserver interface {
	// OnRunStart is called once with the extractor names grouped by layer.
	OnRunStart(layers [][]string)

	// OnLayerStart is called before the extractors of a layer launch.
	OnLayerStart(index int, names []string)

	// OnExtractorState reports a state change or, while Running, item progress.
	OnExtractorState(name string, state State, current, total int)

	// OnRunComplete is called after orphan detection with the final result.
	OnRunComplete(result *Result)
}

// NoOpObserver discards all progress.
type NoOpObserver struct{}

func (NoOpObserver) OnRunStart([][]string)                    {}
func (NoOpObserver) OnLayerStart(int, []string)               {}
func (NoOpObserver) OnExtractorState(string, State, int, int) {}
func (NoOpObserver) OnRunComplete(*Result)                    {}

// ProgressFunc adapts a plain callback into a ProgressObserver. Only
// extractor state changes are forwarded.
type ProgressFunc func(name string, current, total int, status string)

func (f ProgressFunc) OnRunStart([][]string)      {}
func (f ProgressFunc) OnLayerStart(int, []string) {}
func (f ProgressFunc) OnRunComplete(*Result)      {}

func (f ProgressFunc) OnExtractorState(name string, state State, current, total int) {
	f(name, current, total, string(state))
}
