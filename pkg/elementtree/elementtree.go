// Package elementtree builds the dot-path hierarchy of observed
// locations into a rooted tree, assigns dense preorder ids, and
// attaches per-path clock/collection/offset/widget metadata in a
// second pass, for serialization into ElementTreeNodes.
package elementtree

import (
	"sort"
	"strings"

	tcerrors "tracecap/pkg/errors"
)

// WidgetHint is a loose, viewer-facing rendering suggestion attached
// to a leaf node; the engine never interprets it.
type WidgetHint string

const (
	WidgetDefault WidgetHint = ""
	WidgetPlot    WidgetHint = "plot"
	WidgetTable   WidgetHint = "table"
	WidgetEnum    WidgetHint = "enum"
)

// Node is one node of the built tree, after Serialize has assigned ids.
type Node struct {
	ID             int
	Name           string
	ParentID       int // -1 for the synthetic root
	Path           string
	ClockID        int
	CollectionID   int
	Offset         int
	WidgetHint     WidgetHint
	HasMetadata    bool
}

type treeNode struct {
	name     string
	path     string
	children []*treeNode
	byName   map[string]*treeNode
}

// Tree accumulates dot-delimited paths and builds the rooted hierarchy
// on Serialize.
type Tree struct {
	root  *treeNode
	paths map[string]bool
}

// New returns an empty Tree.
func New() *Tree {
	return &Tree{
		root:  &treeNode{byName: make(map[string]*treeNode)},
		paths: make(map[string]bool),
	}
}

// AddPath registers one dot-delimited path. A leading "root." prefix
// is stripped per the all-paths-start-with-root heuristic; a bare
// "root" path contributes nothing. Paths must be legal dot-separated
// identifiers: each component starts with a letter or underscore and
// continues with letters, digits, or underscores.
func (t *Tree) AddPath(path string) error {
	trimmed := strings.TrimPrefix(path, "root.")
	if trimmed == "root" || trimmed == "" {
		return nil
	}
	if t.paths[trimmed] {
		return tcerrors.NewConfigurationError("elementtree.AddPath", "duplicate path "+trimmed)
	}
	parts := strings.Split(trimmed, ".")
	for _, p := range parts {
		if !validIdentifier(p) {
			return tcerrors.NewConfigurationError("elementtree.AddPath", "invalid path component "+p+" in "+trimmed)
		}
	}
	t.paths[trimmed] = true

	cur := t.root
	var soFar []string
	for _, p := range parts {
		soFar = append(soFar, p)
		child, ok := cur.byName[p]
		if !ok {
			child = &treeNode{name: p, path: strings.Join(soFar, "."), byName: make(map[string]*treeNode)}
			cur.byName[p] = child
			cur.children = append(cur.children, child)
		}
		cur = child
	}
	return nil
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		alpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		digit := r >= '0' && r <= '9'
		if i == 0 {
			if !alpha {
				return false
			}
		} else if !alpha && !digit {
			return false
		}
	}
	return true
}

// Metadata is the per-path attachment Serialize's second pass applies
// to leaf (and, where supplied, interior) nodes.
type Metadata struct {
	ClockID      int
	CollectionID int
	Offset       int
	WidgetHint   WidgetHint
}

// Serialize performs the preorder traversal assigning dense ids
// (children sorted by name for determinism), then attaches metadata
// from the caller-supplied map keyed by full dot path (without the
// "root." prefix). Returns nodes in id order; node 0 is always the
// synthetic root with ParentID -1 and no metadata.
func (t *Tree) Serialize(meta map[string]Metadata) []Node {
	nodes := []Node{{ID: 0, Name: "root", ParentID: -1, Path: ""}}
	var walk func(n *treeNode, parentID int)
	walk = func(n *treeNode, parentID int) {
		children := append([]*treeNode(nil), n.children...)
		sort.Slice(children, func(i, j int) bool { return children[i].name < children[j].name })
		for _, c := range children {
			id := len(nodes)
			node := Node{ID: id, Name: c.name, ParentID: parentID, Path: c.path}
			if m, ok := meta[c.path]; ok {
				node.ClockID = m.ClockID
				node.CollectionID = m.CollectionID
				node.Offset = m.Offset
				node.WidgetHint = m.WidgetHint
				node.HasMetadata = true
			}
			nodes = append(nodes, node)
			walk(c, id)
		}
	}
	walk(t.root, 0)
	return nodes
}
