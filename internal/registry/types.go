package registry

// APIType identifies which upstream API family serves an object type.
type APIType string

const (
	APIRest APIType = "rest"
	APISoap APIType = "soap"
)

// TypeDefinition describes one inventoried object type.
//
// Dependencies lists the types whose extraction (and cache warm-up) must finish
// before this type is extracted. DependencyPaths maps a dependency type to the
// path expressions locating references to it inside an object of this type;
// extractors use them, the scheduler does not.
type TypeDefinition struct {
	Name          string `json:"name"`
	ExtractorName string `json:"extractor_name"`

	IDField   string `json:"id_field"`
	KeyField  string `json:"key_field"`
	NameField string `json:"name_field"`

	Dependencies    []string            `json:"dependencies,omitempty"`
	DependencyPaths map[string][]string `json:"dependency_paths,omitempty"`

	SharedFromParent     bool    `json:"shared_from_parent"`
	SupportsMultiAccount bool    `json:"supports_multi_account"`
	APIType              APIType `json:"api_type"`
	Description          string  `json:"description,omitempty"`
}

// clone returns a deep copy so callers can never mutate registry state.
func (d TypeDefinition) clone() TypeDefinition {
	out := d
	if d.Dependencies != nil {
		out.Dependencies = append([]string(nil), d.Dependencies...)
	}
	if d.DependencyPaths != nil {
		out.DependencyPaths = make(map[string][]string, len(d.DependencyPaths))
		for k, v := range d.DependencyPaths {
			out.DependencyPaths[k] = append([]string(nil), v...)
		}
	}
	return out
}

// withDefaults fills the identity fields the same way for every definition.
func (d TypeDefinition) withDefaults() TypeDefinition {
	if d.IDField == "" {
		d.IDField = "id"
	}
	if d.KeyField == "" {
		d.KeyField = "customerKey"
	}
	if d.NameField == "" {
		d.NameField = "name"
	}
	if d.APIType == "" {
		d.APIType = APIRest
	}
	return d
}
