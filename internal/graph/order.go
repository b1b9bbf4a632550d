package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/soochol/flowdeck/internal/flowdeck"
)

// Order returns node ids in topological order. The canvas allows cycles
// while editing; anything that derives an executable sequence from a graph
// must call Order first and refuse on ErrCycle.
func (g Graph) Order() ([]string, error) {
	inDegree := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		inDegree[n.ID] = 0
	}
	children := make(map[string][]string)
	for _, e := range g.Edges {
		if _, ok := inDegree[e.Source.NodeID]; !ok {
			return nil, fmt.Errorf("edge %s references unknown node: %s", e.ID, e.Source.NodeID)
		}
		if _, ok := inDegree[e.Target.NodeID]; !ok {
			return nil, fmt.Errorf("edge %s references unknown node: %s", e.ID, e.Target.NodeID)
		}
		children[e.Source.NodeID] = append(children[e.Source.NodeID], e.Target.NodeID)
		inDegree[e.Target.NodeID]++
	}

	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(g.Nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)
		for _, c := range children[node] {
			inDegree[c]--
			if inDegree[c] == 0 {
				queue = append(queue, c)
			}
		}
		sort.Strings(queue)
	}
	if len(order) != len(g.Nodes) {
		var stuck []string
		for id, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w in workflow graph: %v", flowdeck.ErrCycle, stuck)
	}
	return order, nil
}

// Check validates every node against its definition and the graph against
// cycles. Unknown node types are skipped: they render as legacy forms and
// are preserved untouched.
func (g Graph) Check(defs Definitions, validate func(flowdeck.NodeInstance, flowdeck.NodeDefinition) error) error {
	var errs []error
	for _, n := range g.Nodes {
		def, err := defs.Lookup(n.Type)
		if err != nil {
			continue
		}
		if err := validate(n, def); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := g.Order(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
