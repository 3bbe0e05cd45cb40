package registry

import (
	"fmt"
	"sort"
)

// Registry is an immutable table of TypeDefinitions indexed by type name and
// by extractor name. It is safe for concurrent readers.
type Registry struct {
	byName      map[string]TypeDefinition
	byExtractor map[string]string // extractor name -> type name
	names       []string
}

// New builds a registry from the given definitions.
// Duplicate type or extractor names are a programming error and panic.
func New(defs ...TypeDefinition) *Registry {
	r := &Registry{
		byName:      make(map[string]TypeDefinition, len(defs)),
		byExtractor: make(map[string]string, len(defs)),
	}

	for _, d := range defs {
		d = d.withDefaults().clone()
		if d.ExtractorName == "" {
			d.ExtractorName = d.Name
		}
		if _, dup := r.byName[d.Name]; dup {
			panic(fmt.Sprintf("registry: duplicate type %q", d.Name))
		}
		if other, dup := r.byExtractor[d.ExtractorName]; dup {
			panic(fmt.Sprintf("registry: extractor %q registered for both %q and %q", d.ExtractorName, other, d.Name))
		}
		r.byName[d.Name] = d
		r.byExtractor[d.ExtractorName] = d.Name
		r.names = append(r.names, d.Name)
	}
	sort.Strings(r.names)

	return r
}

// Default returns a fresh registry holding the built-in object types.
func Default() *Registry {
	return New(builtinDefinitions()...)
}

// Definition returns the definition for a type name.
func (r *Registry) Definition(typeName string) (TypeDefinition, bool) {
	d, ok := r.byName[typeName]
	if !ok {
		return TypeDefinition{}, false
	}
	return d.clone(), true
}

// ByExtractor returns the definition served by the named extractor.
func (r *Registry) ByExtractor(extractorName string) (TypeDefinition, bool) {
	typeName, ok := r.byExtractor[extractorName]
	if !ok {
		return TypeDefinition{}, false
	}
	return r.Definition(typeName)
}

// Has reports whether the type is registered.
func (r *Registry) Has(typeName string) bool {
	_, ok := r.byName[typeName]
	return ok
}

// TypeNames returns all registered type names in lexicographic order.
func (r *Registry) TypeNames() []string {
	return append([]string(nil), r.names...)
}

// SharedTypeNames returns the types that may be inherited from a parent account.
func (r *Registry) SharedTypeNames() []string {
	var out []string
	for _, name := range r.names {
		if r.byName[name].SharedFromParent {
			out = append(out, name)
		}
	}
	return out
}

// MultiAccountTypes returns the types whose extraction fans out across child accounts.
func (r *Registry) MultiAccountTypes() []string {
	var out []string
	for _, name := range r.names {
		if r.byName[name].SupportsMultiAccount {
			out = append(out, name)
		}
	}
	return out
}

// DependenciesOf returns the direct dependencies of a type, or nil if unknown.
func (r *Registry) DependenciesOf(typeName string) []string {
	d, ok := r.byName[typeName]
	if !ok {
		return nil
	}
	return append([]string(nil), d.Dependencies...)
}

// DependencyPathsOf returns the path expressions where typeName references depType.
func (r *Registry) DependencyPathsOf(typeName, depType string) []string {
	d, ok := r.byName[typeName]
	if !ok {
		return nil
	}
	paths, ok := d.DependencyPaths[depType]
	if !ok {
		return nil
	}
	return append([]string(nil), paths...)
}

// ExtractorNames returns every extractor name, ordered by type name.
func (r *Registry) ExtractorNames() []string {
	out := make([]string, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.byName[name].ExtractorName)
	}
	return out
}

// TypeToExtractor maps type names to extractor names.
func (r *Registry) TypeToExtractor() map[string]string {
	out := make(map[string]string, len(r.byName))
	for name, d := range r.byName {
		out[name] = d.ExtractorName
	}
	return out
}

// ExtractorToType maps extractor names to type names.
func (r *Registry) ExtractorToType() map[string]string {
	out := make(map[string]string, len(r.byExtractor))
	for ext, name := range r.byExtractor {
		out[ext] = name
	}
	return out
}

// TypeForExtractor returns the type name served by an extractor, falling back
// to the extractor name itself when it is not registered.
func (r *Registry) TypeForExtractor(extractorName string) string {
	if typeName, ok := r.byExtractor[extractorName]; ok {
		return typeName
	}
	return extractorName
}
