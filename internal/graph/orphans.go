package graph

import (
	"sort"

	"go.uber.org/zap"

	"github.com/ayounce80/sfmc-inv2/internal/inventory"
)

// OrphanReason is recorded on every orphan found by reference counting.
const OrphanReason = "Not referenced by any other object"

// OrphanRule says which source types must reference an object type for its
// objects to count as used.
type OrphanRule struct {
	ObjectType   string
	ReferencedBy []string
}

// DefaultOrphanRules returns the built-in rule table.
func DefaultOrphanRules() []OrphanRule {
	return []OrphanRule{
		// Automation Studio activities.
		{ObjectType: "query", ReferencedBy: []string{"automation", "journey"}},
		{ObjectType: "script", ReferencedBy: []string{"automation"}},
		{ObjectType: "import", ReferencedBy: []string{"automation"}},
		{ObjectType: "data_extract", ReferencedBy: []string{"automation"}},
		{ObjectType: "file_transfer", ReferencedBy: []string{"automation"}},
		{ObjectType: "filter", ReferencedBy: []string{"automation", "journey"}},

		{ObjectType: "data_extension", ReferencedBy: []string{
			"automation", "query", "journey", "import", "filter",
			"data_extract", "event_definition", "triggered_send",
		}},

		// Messaging.
		{ObjectType: "email", ReferencedBy: []string{"automation", "journey", "triggered_send"}},
		{ObjectType: "classic_email", ReferencedBy: []string{"automation", "journey", "triggered_send"}},
		{ObjectType: "asset", ReferencedBy: []string{"email", "asset", "journey"}},
		{ObjectType: "content_block", ReferencedBy: []string{"email", "asset"}},

		{ObjectType: "list", ReferencedBy: []string{"triggered_send", "journey"}},
		{ObjectType: "sender_profile", ReferencedBy: []string{"send_classification", "triggered_send"}},
		{ObjectType: "delivery_profile", ReferencedBy: []string{"send_classification", "triggered_send"}},
		{ObjectType: "send_classification", ReferencedBy: []string{"triggered_send"}},

		{ObjectType: "event_definition", ReferencedBy: []string{"journey"}},
	}
}

// FindOrphans returns indexed objects of objectType with no incoming edge.
// When mustBeReferencedBy is given, an object is also kept if any edge from
// one of those source types targets it. Results are ordered by id.
func (b *Builder) FindOrphans(objectType string, mustBeReferencedBy ...string) []inventory.Orphan {
	required := make(map[string]bool, len(mustBeReferencedBy))
	for _, s := range mustBeReferencedBy {
		required[s] = true
	}

	var edges []inventory.Edge
	if len(required) > 0 {
		edges = b.graph.Edges()
	}

	var orphans []inventory.Orphan
	for _, it := range b.Objects(objectType) {
		if b.UsageCount(it.ID, objectType) > 0 {
			continue
		}
		if referencedBy(edges, it.ID, objectType, required) {
			continue
		}

		name := it.Name
		if name == "" {
			name = "Unknown"
		}
		orphans = append(orphans, inventory.Orphan{
			ID:           it.ID,
			ObjectType:   objectType,
			Name:         name,
			FolderPath:   it.FolderPath,
			Reason:       OrphanReason,
			LastModified: it.ModifiedDate,
		})
	}
	return orphans
}

func referencedBy(edges []inventory.Edge, id, objectType string, sources map[string]bool) bool {
	for _, e := range edges {
		if e.TargetID == id && e.TargetType == objectType && sources[e.SourceType] {
			return true
		}
	}
	return false
}

// DetectAllOrphans applies every rule to the indexed types, records the
// orphans on the graph and returns them ordered by type then id. Types with
// nothing indexed are skipped.
func (b *Builder) DetectAllOrphans() []inventory.Orphan {
	var all []inventory.Orphan
	for _, rule := range b.rules {
		if !b.hasType(rule.ObjectType) {
			continue
		}
		all = append(all, b.FindOrphans(rule.ObjectType, rule.ReferencedBy...)...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].ObjectType != all[j].ObjectType {
			return all[i].ObjectType < all[j].ObjectType
		}
		return all[i].ID < all[j].ID
	})

	for _, o := range all {
		b.graph.AddOrphan(o)
	}

	b.logger.Debug("orphan detection complete", zap.Int("orphans", len(all)))
	return all
}
