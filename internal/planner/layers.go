package planner

import (
	"sort"

	"go.uber.org/zap"
)

// Layers groups types into phases: every type's dependencies (within types)
// live in earlier layers, so the members of one layer can run concurrently.
// Each layer is sorted. Types stuck in a cycle form one final layer.
func (p *Planner) Layers(types []string) [][]string {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}

	inDegree, dependents := p.buildEdges(set)

	var current []string
	for t := range set {
		if inDegree[t] == 0 {
			current = append(current, t)
		}
	}
	sort.Strings(current)

	var layers [][]string
	placed := 0
	for len(current) > 0 {
		layers = append(layers, current)
		placed += len(current)

		var next []string
		for _, t := range current {
			for _, dependent := range dependents[t] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		sort.Strings(next)
		current = next
	}

	if placed < len(set) {
		seen := make(map[string]bool, placed)
		for _, layer := range layers {
			for _, t := range layer {
				seen[t] = true
			}
		}
		var remaining []string
		for t := range set {
			if !seen[t] {
				remaining = append(remaining, t)
			}
		}
		sort.Strings(remaining)
		p.logger.Warn("dependency cycle detected, running remaining types last", zap.Strings("types", remaining))
		layers = append(layers, remaining)
	}

	return layers
}
