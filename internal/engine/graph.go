package engine

import (
	"github.com/rendis/askdb/pkg/schema"
)

// topology is the fixed node/edge structure of the workflow. The
// retry loop between validation and generation is an explicit bounded
// iteration in the orchestrator, not a graph edge, so the topology
// stays acyclic.
var topology = map[NodeID][]NodeID{
	NodeLoadMetadata: {NodeGenerateSQL, NodeFollowups},
	NodeGenerateSQL:  {NodeValidateSQL},
	NodeValidateSQL:  {NodeExecute, NodeUnanswerable},
	NodeExecute:      {NodeSummarize, NodeChart},
	NodeSummarize:    nil,
	NodeChart:        nil,
	NodeFollowups:    nil,
	NodeUnanswerable: nil,
}

// compileGraph validates the topology against the registered nodes:
// every node implemented and registered once, every edge well formed,
// a single root, and no cycles (Kahn's algorithm). The traversal order
// itself is fixed in the orchestrator, so compilation carries no state
// forward. Any fault here is a programmer error surfaced at
// construction time, never at request time.
func compileGraph(nodes map[NodeID]Node) error {
	if len(nodes) == 0 {
		return schema.NewError(schema.ErrCodeGraphConfig, "no nodes registered")
	}

	for id := range topology {
		if _, ok := nodes[id]; !ok {
			return schema.NewErrorf(schema.ErrCodeGraphConfig, "topology references unimplemented node: %s", id)
		}
	}
	for id, node := range nodes {
		if node == nil {
			return schema.NewErrorf(schema.ErrCodeGraphConfig, "node %s is nil", id)
		}
		if node.ID() != id {
			return schema.NewErrorf(schema.ErrCodeGraphConfig, "node registered as %s reports ID %s", id, node.ID())
		}
		if _, ok := topology[id]; !ok {
			return schema.NewErrorf(schema.ErrCodeGraphConfig, "node %s is not in the topology", id)
		}
	}

	// Build in-degrees and verify edge targets.
	inDegree := make(map[NodeID]int, len(topology))
	for id := range topology {
		inDegree[id] = 0
	}
	for from, targets := range topology {
		seen := make(map[NodeID]bool, len(targets))
		for _, to := range targets {
			if _, ok := topology[to]; !ok {
				return schema.NewErrorf(schema.ErrCodeGraphConfig, "edge %s -> %s targets unknown node", from, to)
			}
			if to == from {
				return schema.NewErrorf(schema.ErrCodeGraphConfig, "node %s has a self-edge", from)
			}
			if seen[to] {
				return schema.NewErrorf(schema.ErrCodeGraphConfig, "duplicate edge %s -> %s", from, to)
			}
			seen[to] = true
			inDegree[to]++
		}
	}

	// Kahn's algorithm: cycle detection via topological traversal.
	queue := make([]NodeID, 0, len(topology))
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	if len(queue) != 1 || queue[0] != NodeLoadMetadata {
		return schema.NewError(schema.ErrCodeGraphConfig, "topology must have exactly one root: load_metadata")
	}

	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++
		for _, to := range topology[id] {
			inDegree[to]--
			if inDegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}
	if processed != len(topology) {
		return schema.NewError(schema.ErrCodeGraphConfig, "topology contains a cycle")
	}
	return nil
}
