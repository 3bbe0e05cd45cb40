package graph

import "github.com/ayounce80/sfmc-inv2/internal/inventory"

// State is the lifecycle stage of a Graph.
type State int

const (
	StateEmpty State = iota
	StateAccumulating
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateAccumulating:
		return "accumulating"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Connection counts how many edges touch one object id.
type Connection struct {
	ID    string `json:"id"`
	Count int    `json:"connection_count"`
}

// Stats summarizes a graph.
type Stats struct {
	TotalEdges         int            `json:"total_edges"`
	TotalNodes         int            `json:"total_nodes"`
	OrphanedCount      int            `json:"orphaned_count"`
	ByRelationshipType map[string]int `json:"by_relationship_type"`
	BySourceType       map[string]int `json:"by_source_type"`
	ByTargetType       map[string]int `json:"by_target_type"`
	MostConnected      []Connection   `json:"most_connected"`
}

// Data is the serialized form of a Graph.
type Data struct {
	Edges   []inventory.Edge   `json:"edges"`
	Orphans []inventory.Orphan `json:"orphans"`
	Stats   Stats              `json:"stats"`
}

// Source describes one object referencing a target.
type Source struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Name         string `json:"name,omitempty"`
	Relationship string `json:"relationship"`
}

// objectKey identifies an object across types; ids are only unique per type.
type objectKey struct {
	id         string
	objectType string
}
