// Package deptree renders what an object uses (dependencies) or what uses
// an object (dependents) as a tree over relationship edges.
package deptree

import (
	"encoding/json"
	"strings"

	"github.com/ayounce80/sfmc-inv2/internal/inventory"
)

// DefaultMaxDepth bounds tree construction when callers pass 0.
const DefaultMaxDepth = 5

// Node is one object in a dependency tree. Relationship and the sharing
// flags describe the edge that led to the node; they are empty on the root.
type Node struct {
	ID                string  `json:"id"`
	ObjectType        string  `json:"type"`
	Name              string  `json:"name"`
	Relationship      string  `json:"relationship,omitempty"`
	IsShared          bool    `json:"isShared,omitempty"`
	FromParentAccount bool    `json:"fromParentBU,omitempty"`
	Depth             int     `json:"-"`
	Children          []*Node `json:"dependencies,omitempty"`
}

// FlatNode is a tree node flattened for tabular output.
type FlatNode struct {
	ID                string `json:"id"`
	ObjectType        string `json:"type"`
	Name              string `json:"name"`
	Depth             int    `json:"depth"`
	Relationship      string `json:"relationship"`
	IsShared          bool   `json:"is_shared"`
	FromParentAccount bool   `json:"from_parent_bu"`
	ParentID          string `json:"parent_id"`
}

type key struct {
	id         string
	objectType string
}

// Builder indexes edges by source and target.
type Builder struct {
	bySource map[key][]inventory.Edge
	byTarget map[key][]inventory.Edge
}

// NewBuilder indexes edges for tree construction.
func NewBuilder(edges []inventory.Edge) *Builder {
	b := &Builder{
		bySource: make(map[key][]inventory.Edge),
		byTarget: make(map[key][]inventory.Edge),
	}
	for _, e := range edges {
		src := key{e.SourceID, e.SourceType}
		dst := key{e.TargetID, e.TargetType}
		b.bySource[src] = append(b.bySource[src], e)
		b.byTarget[dst] = append(b.byTarget[dst], e)
	}
	return b
}

// DependencyTree follows outgoing edges from the object. An object already
// expanded elsewhere in the tree appears again as a leaf.
func (b *Builder) DependencyTree(id, objectType, name string, maxDepth int) *Node {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	visited := make(map[key]bool)
	return b.build(id, objectType, name, 0, maxDepth, visited, false)
}

// DependentTree follows incoming edges to the object.
func (b *Builder) DependentTree(id, objectType, name string, maxDepth int) *Node {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	visited := make(map[key]bool)
	return b.build(id, objectType, name, 0, maxDepth, visited, true)
}

func (b *Builder) build(id, objectType, name string, depth, maxDepth int, visited map[key]bool, reverse bool) *Node {
	node := &Node{ID: id, ObjectType: objectType, Name: name, Depth: depth}

	k := key{id, objectType}
	if visited[k] || depth >= maxDepth {
		return node
	}
	visited[k] = true

	edges := b.bySource[k]
	if reverse {
		edges = b.byTarget[k]
	}

	for _, e := range edges {
		var child *Node
		if reverse {
			child = b.build(e.SourceID, e.SourceType, e.SourceName, depth+1, maxDepth, visited, reverse)
		} else {
			child = b.build(e.TargetID, e.TargetType, e.TargetName, depth+1, maxDepth, visited, reverse)
		}
		child.Relationship = string(e.Type)
		child.IsShared = e.MetaBool(inventory.MetaIsShared)
		child.FromParentAccount = e.MetaBool(inventory.MetaFromParentBU)
		node.Children = append(node.Children, child)
	}
	return node
}

// Text draws the tree with box-drawing connectors, one node per line:
//
//	[automation] Nightly
//	    ├── [query] Load via automation_contains_query
//	    │   └── [data_extension] ENT.Customers via query_reads_de (shared, parent-BU)
//	    └── [script] Notify via automation_contains_script
func Text(root *Node) string {
	var lines []string
	writeText(&lines, root, "", true)
	return strings.Join(lines, "\n")
}

func writeText(lines *[]string, n *Node, prefix string, last bool) {
	label := "[" + n.ObjectType + "] " + displayName(n)

	if n.Depth == 0 {
		*lines = append(*lines, label)
	} else {
		connector := "├── "
		if last {
			connector = "└── "
		}
		line := prefix + connector + label
		if n.Relationship != "" {
			line += " via " + n.Relationship
		}
		var flags []string
		if n.IsShared {
			flags = append(flags, "shared")
		}
		if n.FromParentAccount {
			flags = append(flags, "parent-BU")
		}
		if len(flags) > 0 {
			line += " (" + strings.Join(flags, ", ") + ")"
		}
		*lines = append(*lines, line)
	}

	childPrefix := prefix + "│   "
	if last {
		childPrefix = prefix + "    "
	}
	for i, c := range n.Children {
		writeText(lines, c, childPrefix, i == len(n.Children)-1)
	}
}

func displayName(n *Node) string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

// Flatten lists the tree depth-first. Each entry records its parent's id,
// which is empty for the root.
func Flatten(root *Node, includeRoot bool) []FlatNode {
	var out []FlatNode

	var visit func(n *Node, parentID string)
	visit = func(n *Node, parentID string) {
		out = append(out, FlatNode{
			ID:                n.ID,
			ObjectType:        n.ObjectType,
			Name:              n.Name,
			Depth:             n.Depth,
			Relationship:      n.Relationship,
			IsShared:          n.IsShared,
			FromParentAccount: n.FromParentAccount,
			ParentID:          parentID,
		})
		for _, c := range n.Children {
			visit(c, n.ID)
		}
	}

	if includeRoot {
		visit(root, "")
	} else {
		for _, c := range root.Children {
			visit(c, root.ID)
		}
	}
	return out
}

// Direction selects which edges a tree follows.
type Direction string

const (
	Dependencies Direction = "dependencies"
	Dependents   Direction = "dependents"
)

// Export is the JSON document form of a tree: the root object plus its
// children keyed by direction.
type Export struct {
	Object    Object
	Direction Direction
	Nodes     []*Node
}

// Object identifies the root of an Export.
type Object struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
}

func (e Export) MarshalJSON() ([]byte, error) {
	nodes := e.Nodes
	if nodes == nil {
		nodes = []*Node{}
	}
	return json.Marshal(map[string]any{
		"object":            e.Object,
		string(e.Direction): nodes,
	})
}

// Export builds the tree of an object in the given direction as a document.
func (b *Builder) Export(id, objectType, name string, dir Direction, maxDepth int) Export {
	var root *Node
	if dir == Dependents {
		root = b.DependentTree(id, objectType, name, maxDepth)
	} else {
		dir = Dependencies
		root = b.DependencyTree(id, objectType, name, maxDepth)
	}
	return Export{
		Object:    Object{ID: id, Type: objectType, Name: name},
		Direction: dir,
		Nodes:     root.Children,
	}
}
