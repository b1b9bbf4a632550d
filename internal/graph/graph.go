// Package graph is the node/edge model edited on the builder canvas.
//
// A Graph is a value: every mutation returns a new Graph and leaves the
// receiver untouched, so drafts can be snapshotted for undo and compared in
// tests without defensive copying at call sites.
package graph

import (
	"fmt"

	"dario.cat/mergo"

	"github.com/soochol/flowdeck/internal/flowdeck"
	"github.com/soochol/flowdeck/internal/nodetypes"
)

// Definitions resolves node types; *nodetypes.Registry satisfies it.
type Definitions interface {
	Lookup(t flowdeck.NodeType) (flowdeck.NodeDefinition, error)
}

type Graph struct {
	Nodes []flowdeck.NodeInstance `json:"nodes"`
	Edges []flowdeck.Edge         `json:"edges"`
}

// Node returns the node with the given id.
func (g Graph) Node(id string) (flowdeck.NodeInstance, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return flowdeck.NodeInstance{}, false
}

// EdgesOf returns the edges incident to the node.
func (g Graph) EdgesOf(nodeID string) []flowdeck.Edge {
	var out []flowdeck.Edge
	for _, e := range g.Edges {
		if e.Source.NodeID == nodeID || e.Target.NodeID == nodeID {
			out = append(out, e)
		}
	}
	return out
}

func (g Graph) clone() Graph {
	out := Graph{
		Nodes: make([]flowdeck.NodeInstance, len(g.Nodes)),
		Edges: append([]flowdeck.Edge(nil), g.Edges...),
	}
	for i, n := range g.Nodes {
		n.Data = nodetypes.CloneData(n.Data)
		out.Nodes[i] = n
	}
	return out
}

func (g Graph) indexOf(id string) int {
	for i, n := range g.Nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// AddNode places a new node of type t, seeding its data from the definition defaults.
func (g Graph) AddNode(defs Definitions, t flowdeck.NodeType, pos flowdeck.Position) (Graph, flowdeck.NodeInstance, error) {
	def, err := defs.Lookup(t)
	if err != nil {
		return g, flowdeck.NodeInstance{}, err
	}
	node := flowdeck.NodeInstance{
		ID:       flowdeck.GenerateID("node"),
		Type:     t,
		Position: pos,
		Data:     nodetypes.CloneData(def.DefaultData),
	}
	out := g.clone()
	out.Nodes = append(out.Nodes, node)
	return out, node, nil
}

// Connect validates c against both node definitions and adds the edge.
func (g Graph) Connect(defs Definitions, c flowdeck.Connection) (Graph, flowdeck.Edge, error) {
	if c.Source.NodeID == c.Target.NodeID {
		return g, flowdeck.Edge{}, flowdeck.Violationf(c.Source.NodeID, "", "a node cannot connect to itself")
	}
	if err := g.checkPort(defs, c.Source, flowdeck.PortOutput); err != nil {
		return g, flowdeck.Edge{}, err
	}
	if err := g.checkPort(defs, c.Target, flowdeck.PortInput); err != nil {
		return g, flowdeck.Edge{}, err
	}
	for _, e := range g.Edges {
		if e.Source == c.Source && e.Target == c.Target {
			return g, flowdeck.Edge{}, flowdeck.Violationf(c.Source.NodeID, c.Source.PortID,
				"already connected to %s.%s", c.Target.NodeID, c.Target.PortID)
		}
	}

	edge := flowdeck.Edge{ID: flowdeck.GenerateID("edge"), Source: c.Source, Target: c.Target}
	out := g.clone()
	out.Edges = append(out.Edges, edge)
	return out, edge, nil
}

func (g Graph) checkPort(defs Definitions, ep flowdeck.Endpoint, want flowdeck.PortDirection) error {
	node, ok := g.Node(ep.NodeID)
	if !ok {
		return fmt.Errorf("%w: %s", flowdeck.ErrNodeNotFound, ep.NodeID)
	}
	def, err := defs.Lookup(node.Type)
	if err != nil {
		return flowdeck.Violationf(ep.NodeID, ep.PortID, "node type %q has no port definitions", node.Type)
	}
	port, ok := def.Port(ep.PortID)
	if !ok {
		return flowdeck.Violationf(ep.NodeID, ep.PortID, "port does not exist on %s", node.Type)
	}
	if port.Direction != want {
		return flowdeck.Violationf(ep.NodeID, ep.PortID, "port is an %s, expected an %s", port.Direction, want)
	}
	return nil
}

// RemoveNode deletes the node and every edge touching it.
func (g Graph) RemoveNode(id string) (Graph, error) {
	idx := g.indexOf(id)
	if idx < 0 {
		return g, fmt.Errorf("%w: %s", flowdeck.ErrNodeNotFound, id)
	}
	out := g.clone()
	out.Nodes = append(out.Nodes[:idx], out.Nodes[idx+1:]...)
	kept := out.Edges[:0]
	for _, e := range out.Edges {
		if e.Source.NodeID != id && e.Target.NodeID != id {
			kept = append(kept, e)
		}
	}
	out.Edges = kept
	return out, nil
}

// UpdateNodeField sets one data field, keeping all others. The value
// replaces the previous one wholesale, empty values included.
func (g Graph) UpdateNodeField(id, field string, value any) (Graph, error) {
	idx := g.indexOf(id)
	if idx < 0 {
		return g, fmt.Errorf("%w: %s", flowdeck.ErrNodeNotFound, id)
	}
	out := g.clone()
	if out.Nodes[idx].Data == nil {
		out.Nodes[idx].Data = map[string]any{}
	}
	if m, ok := value.(map[string]any); ok {
		value = nodetypes.CloneData(m)
	}
	out.Nodes[idx].Data[field] = value
	return out, nil
}

// UpdateNodeData deep-merges patch into the node's data: nested objects are
// merged key by key, other values are overwritten. Empty values in patch do
// not clear existing ones; use UpdateNodeField for that.
func (g Graph) UpdateNodeData(id string, patch map[string]any) (Graph, error) {
	idx := g.indexOf(id)
	if idx < 0 {
		return g, fmt.Errorf("%w: %s", flowdeck.ErrNodeNotFound, id)
	}
	out := g.clone()
	data := out.Nodes[idx].Data
	if data == nil {
		data = map[string]any{}
	}
	if err := mergo.Merge(&data, nodetypes.CloneData(patch), mergo.WithOverride); err != nil {
		return g, fmt.Errorf("merge node data: %w", err)
	}
	out.Nodes[idx].Data = data
	return out, nil
}

// MoveNode updates a node's canvas position.
func (g Graph) MoveNode(id string, pos flowdeck.Position) (Graph, error) {
	idx := g.indexOf(id)
	if idx < 0 {
		return g, fmt.Errorf("%w: %s", flowdeck.ErrNodeNotFound, id)
	}
	out := g.clone()
	out.Nodes[idx].Position = pos
	return out, nil
}

// RemoveEdge deletes a single edge by id.
func (g Graph) RemoveEdge(id string) (Graph, error) {
	for i, e := range g.Edges {
		if e.ID == id {
			out := g.clone()
			out.Edges = append(out.Edges[:i], out.Edges[i+1:]...)
			return out, nil
		}
	}
	return g, fmt.Errorf("%w: edge %s", flowdeck.ErrNotFound, id)
}
