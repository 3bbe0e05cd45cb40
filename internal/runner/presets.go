package runner

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrUnknownPreset is returned for a preset name that is not defined.
var ErrUnknownPreset = errors.New("unknown preset")

// Preset is a named list of extractors.
type Preset struct {
	Name        string   `toml:"-" json:"name"`
	Description string   `toml:"description" json:"description"`
	Extractors  []string `toml:"extractors" json:"extractors"`
}

func builtinPresets() map[string]Preset {
	return map[string]Preset{
		"quick": {
			Description: "Quick overview - automations and data extensions only",
			Extractors:  []string{"automations", "data_extensions"},
		},
		"full": {
			Description: "Full inventory - all 20 extractors (REST and SOAP)",
			Extractors: []string{
				"automations", "queries", "scripts", "imports", "data_extracts",
				"filters", "file_transfers", "data_extensions", "assets", "folders",
				"event_definitions", "journeys", "classic_emails", "triggered_sends", "lists",
				"sender_profiles", "delivery_profiles", "send_classifications", "templates", "account",
			},
		},
		"automation": {
			Description: "Automation focus - all Automation Studio activities",
			Extractors: []string{
				"automations", "queries", "scripts", "imports",
				"data_extracts", "filters", "file_transfers",
			},
		},
		"messaging": {
			Description: "Messaging focus - email sending infrastructure (SOAP)",
			Extractors: []string{
				"classic_emails", "triggered_sends", "sender_profiles",
				"delivery_profiles", "send_classifications",
			},
		},
		"content": {
			Description: "Content focus - data extensions, queries, and Content Builder assets",
			Extractors:  []string{"data_extensions", "queries", "assets"},
		},
		"journey": {
			Description: "Journey focus - journeys, entry events, and related data extensions",
			Extractors:  []string{"journeys", "data_extensions", "event_definitions"},
		},
	}
}

// PresetCatalog holds the built-in presets plus any loaded from a file.
type PresetCatalog struct {
	presets map[string]Preset
}

// DefaultPresets returns a catalog of the built-in presets.
func DefaultPresets() *PresetCatalog {
	return &PresetCatalog{presets: builtinPresets()}
}

type presetFile struct {
	Presets map[string]Preset `toml:"presets"`
}

// LoadPresets reads user presets from a TOML file of the form
//
//	[presets.nightly]
//	description = "Nightly SQL audit"
//	extractors = ["queries", "automations"]
//
// and merges them over the built-ins. A user preset replaces a built-in of
// the same name.
func LoadPresets(path string) (*PresetCatalog, error) {
	var f presetFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("failed to parse presets file: %w", err)
	}

	c := DefaultPresets()
	for name, p := range f.Presets {
		if len(p.Extractors) == 0 {
			return nil, fmt.Errorf("preset %q lists no extractors", name)
		}
		c.presets[name] = p
	}
	return c, nil
}

// Get returns the named preset.
func (c *PresetCatalog) Get(name string) (Preset, error) {
	p, ok := c.presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %s. Available: %s", ErrUnknownPreset, name, strings.Join(c.names(), ", "))
	}
	p.Name = name
	p.Extractors = append([]string(nil), p.Extractors...)
	return p, nil
}

// All returns every preset sorted by name.
func (c *PresetCatalog) All() []Preset {
	out := make([]Preset, 0, len(c.presets))
	for _, name := range c.names() {
		p, _ := c.Get(name)
		out = append(out, p)
	}
	return out
}

func (c *PresetCatalog) names() []string {
	names := make([]string, 0, len(c.presets))
	for name := range c.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FindPreset looks up a built-in preset.
func FindPreset(name string) (Preset, error) {
	return DefaultPresets().Get(name)
}

// Presets returns the built-in presets sorted by name.
func Presets() []Preset {
	return DefaultPresets().All()
}
