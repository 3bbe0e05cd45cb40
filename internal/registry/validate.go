package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dominikbraun/graph"
)

var (
	// ErrUnknownDependency indicates a definition depends on a type that is not registered.
	ErrUnknownDependency = errors.New("unknown dependency")

	// ErrDependencyCycle indicates the type dependency graph is not acyclic.
	ErrDependencyCycle = errors.New("dependency cycle")
)

// Validate checks that every dependency names a registered type and that the
// dependency graph is a DAG. The planner tolerates both problems; this is for
// tooling and tests that want to catch them early.
func (r *Registry) Validate() error {
	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())

	for _, name := range r.names {
		if err := g.AddVertex(name); err != nil {
			return fmt.Errorf("failed to add vertex %s: %w", name, err)
		}
	}

	var problems []error
	for _, name := range r.names {
		for _, dep := range r.byName[name].Dependencies {
			if !r.Has(dep) {
				problems = append(problems, fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, name, dep))
				continue
			}
			// Edges point from the dependency to the dependent, matching extraction order.
			err := g.AddEdge(dep, name)
			switch {
			case err == nil, errors.Is(err, graph.ErrEdgeAlreadyExists):
			case errors.Is(err, graph.ErrEdgeCreatesCycle):
				problems = append(problems, fmt.Errorf("%w: %s -> %s", ErrDependencyCycle, dep, name))
			default:
				return fmt.Errorf("failed to add edge %s -> %s: %w", dep, name, err)
			}
		}
	}

	return joinErrors(problems)
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}

	var b strings.Builder
	b.WriteString("validation failed:")
	for _, err := range errs {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return &validationError{msg: b.String(), errs: errs}
}

type validationError struct {
	msg  string
	errs []error
}

func (e *validationError) Error() string   { return e.msg }
func (e *validationError) Unwrap() []error { return e.errs }
