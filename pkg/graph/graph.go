// Package graph defines the typed directed graph produced by the manifest
// compiler and its serialization to the external engine's document shape.
package graph

import "fmt"

// NodeKind identifies the engine behavior a node carries.
type NodeKind string

const (
	KindTrigger  NodeKind = "trigger"
	KindScript   NodeKind = "script"
	KindHTTP     NodeKind = "http"
	KindDelay    NodeKind = "delay"
	KindMerge    NodeKind = "merge"
	KindCallback NodeKind = "callback"
	KindRespond  NodeKind = "respond"
)

// Node is one executable node of a compiled graph. Params is the opaque
// configuration handed to the engine untouched.
type Node struct {
	Name     string         `json:"name"`
	Kind     NodeKind       `json:"kind"`
	Position [2]int         `json:"position"`
	Params   map[string]any `json:"params,omitempty"`
}

// Target is one endpoint of an outgoing branch.
type Target struct {
	Node  string `json:"node"`
	Port  string `json:"port"`
	Index int    `json:"index"`
}

// Branch is an ordered list of targets fanned out from one output port.
type Branch []Target

// Graph is an insertion-ordered directed graph. Branch registration order is
// significant: the engine dispatches branches in the order they appear, so
// Connect preserves it exactly.
type Graph struct {
	nodes  []*Node
	byName map[string]*Node
	adj    map[string][]Branch
	order  []string
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		byName: make(map[string]*Node),
		adj:    make(map[string][]Branch),
	}
}

// AddNode appends a node. Node names are unique within a graph.
func (g *Graph) AddNode(node *Node) error {
	if _, exists := g.byName[node.Name]; exists {
		return fmt.Errorf("duplicate node name %q", node.Name)
	}

	g.nodes = append(g.nodes, node)
	g.byName[node.Name] = node

	return nil
}

// Connect appends an outgoing branch to a node, preserving registration order.
// Dead-end branches (targets that never continue the main chain) are ordinary
// branches here; the engine simply stops walking them.
func (g *Graph) Connect(from string, branch Branch) error {
	if _, exists := g.byName[from]; !exists {
		return fmt.Errorf("unknown source node %q", from)
	}

	for _, target := range branch {
		if _, exists := g.byName[target.Node]; !exists {
			return fmt.Errorf("unknown target node %q", target.Node)
		}
	}

	if _, seen := g.adj[from]; !seen {
		g.order = append(g.order, from)
	}

	g.adj[from] = append(g.adj[from], branch)

	return nil
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// NodeByName returns the named node, or nil.
func (g *Graph) NodeByName(name string) *Node {
	return g.byName[name]
}

// Branches returns the outgoing branches of a node in registration order.
func (g *Graph) Branches(from string) []Branch {
	return g.adj[from]
}

// CompiledGraph couples a graph with the manifest step ids it was built from.
type CompiledGraph struct {
	*Graph

	StepsBuilt []string
}

// NewCompiled wraps a graph as a compilation result.
func NewCompiled(g *Graph, stepsBuilt []string) *CompiledGraph {
	return &CompiledGraph{Graph: g, StepsBuilt: stepsBuilt}
}
