package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/ayounce80/sfmc-inv2/internal/inventory"
	"github.com/ayounce80/sfmc-inv2/internal/registry"
	"github.com/ayounce80/sfmc-inv2/internal/runner"
)

// ErrNoSelection is returned when neither --extract nor --preset names anything.
var ErrNoSelection = errors.New("no extractors selected: use --extract or --preset")

// resolveExtractors expands --extract values and a preset into extractor
// names, in first-mention order without duplicates. Values may be comma
// lists, glob patterns such as "auto*", or "all". Unknown names are rejected
// here so the planner only ever sees registered extractors.
func resolveExtractors(reg *registry.Registry, values []string, preset string, presets *runner.PresetCatalog) ([]string, error) {
	available := reg.ExtractorNames()
	known := make(map[string]bool, len(available))
	for _, name := range available {
		known[name] = true
	}

	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	if preset != "" {
		p, err := presets.Get(preset)
		if err != nil {
			return nil, err
		}
		for _, name := range p.Extractors {
			if !known[name] {
				return nil, fmt.Errorf("preset %s: %w: %s", p.Name, inventory.ErrUnknownExtractor, name)
			}
			add(name)
		}
	}

	for _, value := range values {
		for _, token := range strings.Split(value, ",") {
			token = strings.TrimSpace(token)
			switch {
			case token == "":
				continue
			case token == "all":
				for _, name := range available {
					add(name)
				}
			case strings.ContainsAny(token, "*?[{"):
				g, err := glob.Compile(token)
				if err != nil {
					return nil, fmt.Errorf("invalid extractor pattern %q: %w", token, err)
				}
				matched := false
				for _, name := range available {
					if g.Match(name) {
						add(name)
						matched = true
					}
				}
				if !matched {
					return nil, fmt.Errorf("pattern %q matches no extractor", token)
				}
			case known[token]:
				add(token)
			default:
				return nil, fmt.Errorf("%w: %s. Available: %s",
					inventory.ErrUnknownExtractor, token, strings.Join(available, ", "))
			}
		}
	}

	if len(out) == 0 {
		return nil, ErrNoSelection
	}
	return out, nil
}
